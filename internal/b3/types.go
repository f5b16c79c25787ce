package b3

// Language is the request language B3 expects.
const Language = "pt-br"

// CompaniesRequest asks for one page of listed companies.
type CompaniesRequest struct {
	Language   string `json:"language"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
}

// CompanyRequest asks for one company's detail by CVM code.
type CompanyRequest struct {
	CodeCVM  int    `json:"codeCVM"`
	Language string `json:"language"`
}

// SplitSubscriptionRequest asks for corporate actions by issuing company.
type SplitSubscriptionRequest struct {
	IssuingCompany string `json:"issuingCompany"`
	Language       string `json:"language"`
}

// DividendsRequest asks for one page of cash dividends by trading name.
type DividendsRequest struct {
	TradingName string `json:"tradingName"`
	Language    string `json:"language"`
	PageNumber  int    `json:"pageNumber"`
	PageSize    int    `json:"pageSize"`
}

// Page is the paging envelope shared by list endpoints.
type Page struct {
	PageNumber   int `json:"pageNumber"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
	TotalPages   int `json:"totalPages"`
}

// CompaniesResponse is one page of the company list.
type CompaniesResponse struct {
	Page    Page             `json:"page"`
	Results []CompaniesEntry `json:"results"`
}

// CompaniesEntry is one listed company; only the CVM code is used.
type CompaniesEntry struct {
	CodeCVM     int    `json:"codeCVM"`
	IssuingCode string `json:"issuingCompany"`
	CompanyName string `json:"companyName"`
}

// OtherCode is one tradable symbol of a company.
type OtherCode struct {
	Code string `json:"code"`
	ISIN string `json:"isin"`
}

// CompanyResponse is a company detail payload.
type CompanyResponse struct {
	CNPJ                   string      `json:"cnpj"`
	CodeCVM                int         `json:"codeCVM"`
	CompanyName            string      `json:"companyName"`
	IssuingCompany         string      `json:"issuingCompany"`
	IndustryClassification string      `json:"industryClassification"`
	HasBDR                 bool        `json:"hasBDR"`
	HasEmissions           bool        `json:"hasEmissions"`
	TradingName            string      `json:"tradingName"`
	OtherCodes             []OtherCode `json:"otherCodes"`
}

// Valid reports whether the detail carries every field needed to persist a
// company. Invalid details are dropped before any ancillary fetch.
func (c *CompanyResponse) Valid() bool {
	return c != nil &&
		c.CNPJ != "" &&
		c.CompanyName != "" &&
		c.CodeCVM != 0 &&
		c.IndustryClassification != ""
}

// SplitSubscriptionResponse carries share counts, stock dividends (splits)
// and subscriptions.
type SplitSubscriptionResponse struct {
	NumberPreferredShares Count           `json:"numberPreferredShares"`
	NumberCommonShares    Count           `json:"numberCommonShares"`
	StockDividends        []StockDividend `json:"stockDividends"`
	Subscriptions         []Subscription  `json:"subscriptions"`
}

// StockDividend is a split, reverse split or bonus issue.
type StockDividend struct {
	AssetIssued   string `json:"assetIssued"`
	LastDatePrior Date   `json:"lastDatePrior"`
	Factor        Number `json:"factor"`
	ApprovedOn    Date   `json:"approvedOn"`
	Label         string `json:"label"`
}

// Subscription is a rights offering.
type Subscription struct {
	AssetIssued   string `json:"assetIssued"`
	Percentage    Number `json:"percentage"`
	PriceUnit     Number `json:"priceUnit"`
	ApprovedOn    Date   `json:"approvedOn"`
	LastDatePrior Date   `json:"lastDatePrior"`
}

// DividendsResponse is one page of cash dividends.
type DividendsResponse struct {
	Page    Page             `json:"page"`
	Results []DividendResult `json:"results"`
}

// DividendResult is one cash distribution.
type DividendResult struct {
	ClosingPricePriorExDate Number `json:"closingPricePriorExDate"`
	CorporateAction         string `json:"corporateAction"`
	CorporateActionPrice    Number `json:"corporateActionPrice"`
	ValueCash               Number `json:"valueCash"`
	DateApproval            Date   `json:"dateApproval"`
	LastDatePriorEx         Date   `json:"lastDatePriorEx"`
	TypeStock               string `json:"typeStock"`
}
