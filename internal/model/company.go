// Package model holds the reference and market entities persisted by the
// crawler and the history pipeline.
//
// Entities created during a run link to their parents by pointer. Database
// ids are zero until the store commits them, so a Ticker created in the same
// run as its Company resolves the company id at commit time.
package model

import (
	"strings"
	"time"
)

// Sector is one of the fixed top-level economic sectors.
type Sector struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Industry is a classification segment taken from a company's
// industryClassification ("Setor / Subsetor / Segmento").
type Industry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	SectorID *int64 `json:"sector_id,omitempty"`
}

// Key returns the case-insensitive identity of the industry.
func (i *Industry) Key() string {
	return FoldName(i.Name)
}

// Company is a listed issuer. CNPJ is its natural key.
type Company struct {
	ID                     int64     `json:"id"`
	CVMCode                int       `json:"cvm_code"`
	CNPJ                   string    `json:"cnpj"`
	Name                   string    `json:"name"`
	TradingName            string    `json:"trading_name"`
	IssuingCompany         string    `json:"issuing_company"`
	IndustryClassification string    `json:"industry_classification"`
	HasBDR                 bool      `json:"has_bdr"`
	HasEmissions           bool      `json:"has_emissions"`
	CommonShares           int64     `json:"common_shares"`
	PreferredShares        int64     `json:"preferred_shares"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// CompanyIndustry associates a company with one of its industry segments.
type CompanyIndustry struct {
	Company  *Company
	Industry *Industry
}

// Key returns the junction's natural key.
func (ci CompanyIndustry) Key() CompanyIndustryKey {
	return CompanyIndustryKey{CNPJ: ci.Company.CNPJ, Industry: ci.Industry.Key()}
}

// Ticker is a traded symbol. Every ticker belongs to exactly one company.
type Ticker struct {
	ID      int64    `json:"id"`
	Symbol  string   `json:"symbol"`
	ISIN    string   `json:"isin"`
	Company *Company `json:"-"`
}

// SplitIndustries breaks an industryClassification string on " / " into its
// segments. Blank segments and case-insensitive repeats are dropped.
func SplitIndustries(classification string) []string {
	parts := strings.Split(classification, " / ")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k := FoldName(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
