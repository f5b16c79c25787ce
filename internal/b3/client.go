// Package b3 is the transport for B3's listed-company endpoints. Request
// parameters are JSON encoded, base64 encoded and appended to the endpoint
// path.
package b3

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketdata-cli/internal/fetcher"
)

// Default endpoint bases.
const (
	DefaultListCompaniesURL     = "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetInitialCompanies"
	DefaultCompanyDetailsURL    = "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetDetail"
	DefaultSplitSubscriptionURL = "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetListedSupplementCompany"
	DefaultDividendsURL         = "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetListedCashDividends"

	// DefaultMinBodyBytes is the largest body B3 sends for "not found".
	DefaultMinBodyBytes = 10
	DefaultPageSize     = 120
	DefaultDividendSize = 20
)

// URLs holds the endpoint bases.
type URLs struct {
	ListCompanies     string
	CompanyDetails    string
	SplitSubscription string
	Dividends         string
}

// DefaultURLs returns the production endpoints.
func DefaultURLs() URLs {
	return URLs{
		ListCompanies:     DefaultListCompaniesURL,
		CompanyDetails:    DefaultCompanyDetailsURL,
		SplitSubscription: DefaultSplitSubscriptionURL,
		Dividends:         DefaultDividendsURL,
	}
}

// Options configures a Client.
type Options struct {
	URLs             URLs
	Language         string
	PageSize         int
	DividendPageSize int
	MinBodyBytes     int
}

// Client fetches and decodes B3 payloads. Every method makes one request.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// NewClient creates a Client over f. Zero options take defaults.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	def := DefaultURLs()
	if opts.URLs.ListCompanies == "" {
		opts.URLs.ListCompanies = def.ListCompanies
	}
	if opts.URLs.CompanyDetails == "" {
		opts.URLs.CompanyDetails = def.CompanyDetails
	}
	if opts.URLs.SplitSubscription == "" {
		opts.URLs.SplitSubscription = def.SplitSubscription
	}
	if opts.URLs.Dividends == "" {
		opts.URLs.Dividends = def.Dividends
	}
	if opts.Language == "" {
		opts.Language = Language
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.DividendPageSize <= 0 {
		opts.DividendPageSize = DefaultDividendSize
	}
	if opts.MinBodyBytes <= 0 {
		opts.MinBodyBytes = DefaultMinBodyBytes
	}
	return &Client{f: f, opts: opts}
}

// EncodeURL appends the base64 JSON encoding of req to base.
func EncodeURL(base string, req any) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "b3: encode request")
	}
	return strings.TrimRight(base, "/") + "/" + base64.StdEncoding.EncodeToString(raw), nil
}

func get[T any](ctx context.Context, c *Client, base string, req any) (*T, error) {
	u, err := EncodeURL(base, req)
	if err != nil {
		return nil, err
	}
	body, err := fetcher.ReadBody(ctx, c.f, u, c.opts.MinBodyBytes)
	if err != nil {
		return nil, err
	}
	out, err := fetcher.DecodeJSONBytes[T](body)
	if err != nil {
		return nil, eris.Wrapf(err, "b3: decode %T", out)
	}
	return out, nil
}

// Companies fetches one page of the company list.
func (c *Client) Companies(ctx context.Context, page int) (*CompaniesResponse, error) {
	return get[CompaniesResponse](ctx, c, c.opts.URLs.ListCompanies, CompaniesRequest{
		Language:   c.opts.Language,
		PageNumber: page,
		PageSize:   c.opts.PageSize,
	})
}

// Company fetches one company's detail.
func (c *Client) Company(ctx context.Context, codeCVM int) (*CompanyResponse, error) {
	return get[CompanyResponse](ctx, c, c.opts.URLs.CompanyDetails, CompanyRequest{
		CodeCVM:  codeCVM,
		Language: c.opts.Language,
	})
}

// SplitSubscription fetches share counts, splits and subscriptions.
func (c *Client) SplitSubscription(ctx context.Context, issuingCompany string) (*SplitSubscriptionResponse, error) {
	return get[SplitSubscriptionResponse](ctx, c, c.opts.URLs.SplitSubscription, SplitSubscriptionRequest{
		IssuingCompany: issuingCompany,
		Language:       c.opts.Language,
	})
}

// Dividends fetches one page of cash dividends.
func (c *Client) Dividends(ctx context.Context, tradingName string, page int) (*DividendsResponse, error) {
	return get[DividendsResponse](ctx, c, c.opts.URLs.Dividends, DividendsRequest{
		TradingName: tradingName,
		Language:    c.opts.Language,
		PageNumber:  page,
		PageSize:    c.opts.DividendPageSize,
	})
}
