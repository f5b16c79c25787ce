package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketdata-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// referenceChangeSet builds one company with two industries, two tickers
// and one event of each kind, all new.
func referenceChangeSet() *ChangeSet {
	bank := &model.Industry{Name: "Financeiro"}
	banks := &model.Industry{Name: "Bancos"}
	itau := &model.Company{
		CVMCode:                19348,
		CNPJ:                   "60872504000123",
		Name:                   "ITAU UNIBANCO HOLDING S.A.",
		TradingName:            "ITAUUNIBANCO",
		IssuingCompany:         "ITUB",
		IndustryClassification: "Financeiro / Bancos",
		CommonShares:           4958290359,
		PreferredShares:        4845844989,
	}
	itub3 := &model.Ticker{Symbol: "ITUB3", ISIN: "BRITUBACNOR1", Company: itau}
	itub4 := &model.Ticker{Symbol: "ITUB4", ISIN: "BRITUBACNPR1", Company: itau}

	return &ChangeSet{
		Industries: []*model.Industry{bank, banks},
		Companies:  []*model.Company{itau},
		CompanyIndustries: []model.CompanyIndustry{
			{Company: itau, Industry: bank},
			{Company: itau, Industry: banks},
		},
		Tickers: []*model.Ticker{itub3, itub4},
		Splits: []model.Split{
			{Ticker: itub4, LastDate: day(2019, 9, 2), ApprovedOn: day(2019, 8, 1), Factor: decimal.RequireFromString("1.1"), Type: "DESDOBRAMENTO"},
		},
		Subscriptions: []model.Subscription{
			{Ticker: itub4, LastDate: day(2015, 3, 10), ApprovedOn: day(2015, 2, 1), Percentage: decimal.RequireFromString("2.5"), PriceUnit: decimal.RequireFromString("30.12")},
		},
		Dividends: []model.Dividend{
			{Ticker: itub4, ApprovedOn: day(2024, 2, 5), PriorExDate: day(2024, 2, 20), ClosePrice: decimal.RequireFromString("33.10"), Type: "JRS CAP PROPRIO", Value: decimal.RequireFromString("0.24")},
		},
	}
}

func TestSQLite_Commit_ReferenceChain(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := referenceChangeSet()
	n, err := st.Commit(ctx, cs)
	require.NoError(t, err)
	assert.Equal(t, int64(cs.Len()), n)

	// Ids were assigned in place.
	assert.NotZero(t, cs.Industries[0].ID)
	assert.NotZero(t, cs.Companies[0].ID)
	assert.NotZero(t, cs.Tickers[1].ID)

	ref, err := st.LoadReference(ctx)
	require.NoError(t, err)

	assert.Len(t, ref.Industries, 2)
	assert.Contains(t, ref.Industries, model.FoldName("BANCOS"))
	require.Contains(t, ref.Companies, "60872504000123")
	assert.Equal(t, int64(4958290359), ref.Companies["60872504000123"].CommonShares)
	assert.Contains(t, ref.CompanyIndustries, model.CompanyIndustryKey{CNPJ: "60872504000123", Industry: model.FoldName("financeiro")})

	require.Contains(t, ref.Tickers, "ITUB4")
	assert.Equal(t, "60872504000123", ref.Tickers["ITUB4"].Company.CNPJ)

	assert.Contains(t, ref.Splits, model.EventKey{Symbol: "ITUB4", Day: model.DayOf(day(2019, 9, 2))})
	assert.Contains(t, ref.Subscriptions, model.EventKey{Symbol: "ITUB4", Day: model.DayOf(day(2015, 3, 10))})
	assert.Contains(t, ref.Dividends, model.EventKey{Symbol: "ITUB4", Day: model.DayOf(day(2024, 2, 5))})
	assert.Equal(t, day(2024, 2, 5), ref.LatestEvent["60872504000123"])

	tickers, err := st.LoadTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, cs.Tickers[0].ID, tickers["ITUB3"])
}

func TestSQLite_Commit_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.Commit(context.Background(), &ChangeSet{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.Commit(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Commit_DanglingLink(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Commit(context.Background(), &ChangeSet{
		Tickers: []*model.Ticker{{Symbol: "XPTO3"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDanglingLink))
}

func TestSQLite_Commit_UncommittedParent(t *testing.T) {
	st := newTestSQLiteStore(t)

	orphan := &model.Company{CNPJ: "1"}
	_, err := st.Commit(context.Background(), &ChangeSet{
		Tickers: []*model.Ticker{{Symbol: "XPTO3", Company: orphan}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDanglingLink))
}

func TestSQLite_Commit_IsAtomic(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := referenceChangeSet()
	_, err := st.Commit(ctx, cs)
	require.NoError(t, err)

	id := cs.Tickers[0].ID
	price := model.Price{TickerID: id, Date: day(2024, 1, 2), Close: decimal.RequireFromString("30.00")}

	// A new industry plus a duplicated new price: the duplicate fails and
	// the industry must not be written either.
	_, err = st.Commit(ctx, &ChangeSet{
		Industries: []*model.Industry{{Name: "Seguradoras"}},
		Prices:     []model.Price{price, price},
	})
	require.Error(t, err)

	ref, err := st.LoadReference(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ref.Industries, model.FoldName("Seguradoras"))

	keys, err := st.LoadPriceKeys(ctx, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLite_Prices(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := st.LatestPriceDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cs := referenceChangeSet()
	_, err = st.Commit(ctx, cs)
	require.NoError(t, err)
	id := cs.Tickers[1].ID

	n, err := st.Commit(ctx, &ChangeSet{Prices: []model.Price{
		{TickerID: id, Date: day(2024, 1, 2), Open: decimal.RequireFromString("32.10"), Close: decimal.RequireFromString("32.50")},
		{TickerID: id, Date: day(2024, 1, 3), Close: decimal.RequireFromString("32.90"), Expiration: day(9999, 12, 31)},
		{TickerID: id, Date: day(2023, 12, 28), Close: decimal.RequireFromString("31.00")},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	latest, ok, err := st.LatestPriceDate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, day(2024, 1, 3), latest)

	keys, err := st.LoadPriceKeys(ctx, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, model.PriceKey{TickerID: id, Day: model.DayOf(day(2024, 1, 2))})
	assert.NotContains(t, keys, model.PriceKey{TickerID: id, Day: model.DayOf(day(2023, 12, 28))})

	// Overwrite an existing key.
	n, err = st.Commit(ctx, &ChangeSet{PriceUpdates: []model.Price{
		{TickerID: id, Date: day(2024, 1, 2), Close: decimal.RequireFromString("99.99")},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var closeStr string
	require.NoError(t, st.db.QueryRow(`SELECT close FROM historical_prices WHERE ticker_id = ? AND date = ?`, id, "2024-01-02").Scan(&closeStr))
	assert.Equal(t, "99.99", closeStr)
}

func TestSQLite_CompanyUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := referenceChangeSet()
	_, err := st.Commit(ctx, cs)
	require.NoError(t, err)

	c := cs.Companies[0]
	c.CommonShares = 1
	c.TradingName = "ITAU"
	n, err := st.Commit(ctx, &ChangeSet{CompanyUpdates: []*model.Company{c}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ref, err := st.LoadReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Companies[c.CNPJ].CommonShares)
	assert.Equal(t, "ITAU", ref.Companies[c.CNPJ].TradingName)
}

func TestSQLite_EventUpdates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := referenceChangeSet()
	_, err := st.Commit(ctx, cs)
	require.NoError(t, err)

	ref, err := st.LoadReference(ctx)
	require.NoError(t, err)
	itub4 := ref.Tickers["ITUB4"]

	n, err := st.Commit(ctx, &ChangeSet{
		SplitUpdates:        []model.Split{{Ticker: itub4, LastDate: day(2019, 9, 2), ApprovedOn: day(2019, 8, 1), Factor: decimal.NewFromInt(2)}},
		SubscriptionUpdates: []model.Subscription{{Ticker: itub4, LastDate: day(2015, 3, 10), ApprovedOn: day(2015, 2, 1), Percentage: decimal.NewFromInt(3)}},
		DividendUpdates:     []model.Dividend{{Ticker: itub4, ApprovedOn: day(2024, 2, 5), Value: decimal.RequireFromString("0.30")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	splits, err := st.Splits(ctx, "ITUB4")
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.True(t, splits[0].Factor.Equal(decimal.NewFromInt(2)))
}

func TestSQLite_Splits_Ordered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cs := referenceChangeSet()
	_, err := st.Commit(ctx, cs)
	require.NoError(t, err)
	itub4 := cs.Tickers[1]

	_, err = st.Commit(ctx, &ChangeSet{Splits: []model.Split{
		{Ticker: itub4, LastDate: day(2011, 5, 2), ApprovedOn: day(2011, 4, 1), Factor: decimal.NewFromInt(2)},
	}})
	require.NoError(t, err)

	splits, err := st.Splits(ctx, "ITUB4")
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, day(2011, 4, 1), splits[0].ApprovedOn)
	assert.Equal(t, day(2019, 8, 1), splits[1].ApprovedOn)
	assert.Equal(t, "ITUB4", splits[1].Ticker.Symbol)

	factors := model.CumulativeFactors(splits)
	assert.True(t, factors[1].Cumulative.Equal(decimal.RequireFromString("2.2")))

	none, err := st.Splits(ctx, "XPTO3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	crawlID, err := st.StartRun(ctx, "crawl")
	require.NoError(t, err)
	historyID, err := st.StartRun(ctx, "history")
	require.NoError(t, err)

	require.NoError(t, st.CompleteRun(ctx, crawlID, 42, map[string]any{"companies": 3}))
	require.NoError(t, st.FailRun(ctx, historyID, "boom"))

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]model.Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, model.RunStatusComplete, byID[crawlID].Status)
	assert.Equal(t, int64(42), byID[crawlID].Rows)
	assert.EqualValues(t, 3, byID[crawlID].Metadata["companies"])
	assert.NotNil(t, byID[crawlID].CompletedAt)
	assert.Equal(t, model.RunStatusFailed, byID[historyID].Status)
	assert.Equal(t, "boom", byID[historyID].Error)

	runs, err = st.ListRuns(ctx, RunFilter{Job: "history"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, historyID, runs[0].ID)

	err = st.CompleteRun(ctx, "missing", 0, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Sectors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seed := []model.Sector{{ID: 1, Name: "Agronegócio"}, {ID: 7, Name: "Financeiro"}}
	require.NoError(t, st.SeedSectors(ctx, seed))
	require.NoError(t, st.SeedSectors(ctx, seed))

	sectors, err := st.Sectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, seed, sectors)

	cs := referenceChangeSet()
	_, err = st.Commit(ctx, cs)
	require.NoError(t, err)

	n, err := st.AssignSectors(ctx, []SectorAssignment{
		{IndustryName: "BANCOS", SectorID: 7},
		{IndustryID: cs.Industries[0].ID, SectorID: 7},
		{IndustryName: "Unknown", SectorID: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ref, err := st.LoadReference(ctx)
	require.NoError(t, err)
	require.NotNil(t, ref.Industries[model.FoldName("Bancos")].SectorID)
	assert.Equal(t, int64(7), *ref.Industries[model.FoldName("Bancos")].SectorID)
}
