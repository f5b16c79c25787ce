package store

import (
	"context"
	"time"

	"github.com/sells-group/marketdata-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Job   string `json:"job,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SectorAssignment moves an industry, identified by id or by name, under a sector.
type SectorAssignment struct {
	IndustryID   int64
	IndustryName string
	SectorID     int64
}

// Store defines the persistence interface for the ingestion jobs.
type Store interface {
	// Snapshots, read once before a run starts.
	LoadReference(ctx context.Context) (*Reference, error)
	LoadTickers(ctx context.Context) (map[string]int64, error)
	LoadPriceKeys(ctx context.Context, from, to time.Time) (map[model.PriceKey]struct{}, error)
	LatestPriceDate(ctx context.Context) (time.Time, bool, error)

	// Commit writes a change set in a single transaction and returns the
	// number of rows written. Ids of newly created entities are set in place.
	Commit(ctx context.Context, cs *ChangeSet) (int64, error)

	// Runs
	StartRun(ctx context.Context, job string) (string, error)
	CompleteRun(ctx context.Context, id string, rows int64, metadata map[string]any) error
	FailRun(ctx context.Context, id string, errMsg string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Sectors
	Sectors(ctx context.Context) ([]model.Sector, error)
	SeedSectors(ctx context.Context, sectors []model.Sector) error
	AssignSectors(ctx context.Context, assignments []SectorAssignment) (int64, error)

	// Splits returns a ticker's splits ordered by approval date.
	Splits(ctx context.Context, symbol string) ([]model.Split, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Reference is the stored reference data the crawler deduplicates against.
type Reference struct {
	Industries        map[string]*model.Industry // by model.FoldName
	Companies         map[string]*model.Company  // by CNPJ
	CompanyIndustries map[model.CompanyIndustryKey]struct{}
	Tickers           map[string]*model.Ticker // by symbol
	Splits            map[model.EventKey]struct{}
	Subscriptions     map[model.EventKey]struct{}
	Dividends         map[model.EventKey]struct{}
	// LatestEvent is the newest stored event date per company CNPJ.
	LatestEvent map[string]time.Time
}

// NewReference returns an empty Reference.
func NewReference() *Reference {
	return &Reference{
		Industries:        make(map[string]*model.Industry),
		Companies:         make(map[string]*model.Company),
		CompanyIndustries: make(map[model.CompanyIndustryKey]struct{}),
		Tickers:           make(map[string]*model.Ticker),
		Splits:            make(map[model.EventKey]struct{}),
		Subscriptions:     make(map[model.EventKey]struct{}),
		Dividends:         make(map[model.EventKey]struct{}),
		LatestEvent:       make(map[string]time.Time),
	}
}

// ChangeSet is everything a run writes. New entities are inserted in
// dependency order; Updates overwrite rows whose key already exists.
type ChangeSet struct {
	Industries        []*model.Industry
	Companies         []*model.Company
	CompanyUpdates    []*model.Company
	CompanyIndustries []model.CompanyIndustry
	Tickers           []*model.Ticker

	Prices       []model.Price
	PriceUpdates []model.Price

	Splits              []model.Split
	SplitUpdates        []model.Split
	Subscriptions       []model.Subscription
	SubscriptionUpdates []model.Subscription
	Dividends           []model.Dividend
	DividendUpdates     []model.Dividend
}

// Len returns the number of rows the change set would write.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Industries) + len(c.Companies) + len(c.CompanyUpdates) +
		len(c.CompanyIndustries) + len(c.Tickers) +
		len(c.Prices) + len(c.PriceUpdates) +
		len(c.Splits) + len(c.SplitUpdates) +
		len(c.Subscriptions) + len(c.SubscriptionUpdates) +
		len(c.Dividends) + len(c.DividendUpdates)
}

// validate checks that every link of the change set resolves to a parent
// that is either stored or created by the same change set.
func (c *ChangeSet) validate() error {
	for _, ci := range c.CompanyIndustries {
		if ci.Company == nil || ci.Industry == nil {
			return errDangling("company industry")
		}
	}
	for _, t := range c.Tickers {
		if t.Company == nil {
			return errDangling("ticker " + t.Symbol)
		}
	}
	for _, s := range c.Splits {
		if s.Ticker == nil {
			return errDangling("split")
		}
	}
	for _, s := range c.SplitUpdates {
		if s.Ticker == nil {
			return errDangling("split")
		}
	}
	for _, s := range c.Subscriptions {
		if s.Ticker == nil {
			return errDangling("subscription")
		}
	}
	for _, s := range c.SubscriptionUpdates {
		if s.Ticker == nil {
			return errDangling("subscription")
		}
	}
	for _, d := range c.Dividends {
		if d.Ticker == nil {
			return errDangling("dividend")
		}
	}
	for _, d := range c.DividendUpdates {
		if d.Ticker == nil {
			return errDangling("dividend")
		}
	}
	return nil
}

// dateOrNil maps the zero time to SQL NULL.
func dateOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
