package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketdata-cli/internal/db"
	"github.com/sells-group/marketdata-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlInsertIndustry = `INSERT INTO market.industries (name, name_key, sector_id) VALUES ($1, $2, $3) RETURNING id`
	sqlInsertCompany  = `INSERT INTO market.companies (cvm_code, cnpj, name, trading_name, issuing_company, industry_classification, has_bdr, has_emissions, common_shares, preferred_shares, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	sqlUpdateCompany = `UPDATE market.companies SET cvm_code = $2, name = $3, trading_name = $4, issuing_company = $5, industry_classification = $6,
		has_bdr = $7, has_emissions = $8, common_shares = $9, preferred_shares = $10, updated_at = $11 WHERE cnpj = $1`
	sqlInsertTicker = `INSERT INTO market.tickers (symbol, isin, company_id) VALUES ($1, $2, $3) RETURNING id`
	sqlInsertRun    = `INSERT INTO market.runs (id, job, status, started_at) VALUES ($1, $2, $3, $4)`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-row statements of a commit.
var preparedStatements = map[string]string{
	"insert_industry": sqlInsertIndustry,
	"insert_company":  sqlInsertCompany,
	"update_company":  sqlUpdateCompany,
	"insert_ticker":   sqlInsertTicker,
	"insert_run":      sqlInsertRun,
}

var (
	priceColumns        = []string{"ticker_id", "date", "open", "high", "low", "average", "close", "strike", "expiration"}
	splitColumns        = []string{"ticker_id", "last_date", "approved_on", "factor", "type"}
	subscriptionColumns = []string{"ticker_id", "last_date", "approved_on", "percentage", "price_unit"}
	dividendColumns     = []string{"ticker_id", "approved_on", "prior_ex_date", "close_price", "type", "percentage", "value"}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Tables may not exist yet on the connection that runs migrations.
		var ready bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('market.runs') IS NOT NULL`).Scan(&ready); err != nil || !ready {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Snapshots ---

func (s *PostgresStore) LoadReference(ctx context.Context) (*Reference, error) {
	ref := NewReference()
	companiesByID := make(map[int64]*model.Company)
	var tickerRows []tickerRow

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, `SELECT id, name, sector_id FROM market.industries`)
		if err != nil {
			return eris.Wrap(err, "postgres: load industries")
		}
		defer rows.Close()
		for rows.Next() {
			ind := &model.Industry{}
			if err := rows.Scan(&ind.ID, &ind.Name, &ind.SectorID); err != nil {
				return eris.Wrap(err, "postgres: scan industry")
			}
			ref.Industries[ind.Key()] = ind
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, `SELECT id, cvm_code, cnpj, name, trading_name, issuing_company, industry_classification,
			has_bdr, has_emissions, common_shares, preferred_shares, updated_at FROM market.companies`)
		if err != nil {
			return eris.Wrap(err, "postgres: load companies")
		}
		defer rows.Close()
		for rows.Next() {
			c := &model.Company{}
			if err := rows.Scan(&c.ID, &c.CVMCode, &c.CNPJ, &c.Name, &c.TradingName, &c.IssuingCompany,
				&c.IndustryClassification, &c.HasBDR, &c.HasEmissions, &c.CommonShares, &c.PreferredShares, &c.UpdatedAt); err != nil {
				return eris.Wrap(err, "postgres: scan company")
			}
			ref.Companies[c.CNPJ] = c
			companiesByID[c.ID] = c
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, `SELECT c.cnpj, i.name FROM market.company_industries ci
			JOIN market.companies c ON c.id = ci.company_id
			JOIN market.industries i ON i.id = ci.industry_id`)
		if err != nil {
			return eris.Wrap(err, "postgres: load company industries")
		}
		defer rows.Close()
		for rows.Next() {
			var cnpj, name string
			if err := rows.Scan(&cnpj, &name); err != nil {
				return eris.Wrap(err, "postgres: scan company industry")
			}
			ref.CompanyIndustries[model.CompanyIndustryKey{CNPJ: cnpj, Industry: model.FoldName(name)}] = struct{}{}
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, `SELECT id, symbol, isin, company_id FROM market.tickers`)
		if err != nil {
			return eris.Wrap(err, "postgres: load tickers")
		}
		defer rows.Close()
		for rows.Next() {
			var r tickerRow
			if err := rows.Scan(&r.id, &r.symbol, &r.isin, &r.companyID); err != nil {
				return eris.Wrap(err, "postgres: scan ticker")
			}
			tickerRows = append(tickerRows, r)
		}
		return rows.Err()
	})
	for _, ev := range eventKeyQueries {
		g.Go(func() error {
			return s.loadEventKeys(gctx, ev.sql, ev.target(ref))
		})
	}
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, sqlLatestEvent)
		if err != nil {
			return eris.Wrap(err, "postgres: load latest events")
		}
		defer rows.Close()
		for rows.Next() {
			var cnpj string
			var d time.Time
			if err := rows.Scan(&cnpj, &d); err != nil {
				return eris.Wrap(err, "postgres: scan latest event")
			}
			ref.LatestEvent[cnpj] = d
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	linkTickers(ref, tickerRows, companiesByID)
	return ref, nil
}

func (s *PostgresStore) loadEventKeys(ctx context.Context, sql string, into map[model.EventKey]struct{}) error {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return eris.Wrap(err, "postgres: load event keys")
	}
	defer rows.Close()
	for rows.Next() {
		var symbol string
		var d time.Time
		if err := rows.Scan(&symbol, &d); err != nil {
			return eris.Wrap(err, "postgres: scan event key")
		}
		into[model.EventKey{Symbol: symbol, Day: model.DayOf(d)}] = struct{}{}
	}
	return rows.Err()
}

func (s *PostgresStore) LoadTickers(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, id FROM market.tickers`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load tickers")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var id int64
		if err := rows.Scan(&symbol, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ticker")
		}
		out[symbol] = id
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tickers")
}

func (s *PostgresStore) LoadPriceKeys(ctx context.Context, from, to time.Time) (map[model.PriceKey]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticker_id, date FROM market.historical_prices WHERE date BETWEEN $1 AND $2`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load price keys")
	}
	defer rows.Close()

	out := make(map[model.PriceKey]struct{})
	for rows.Next() {
		var id int64
		var d time.Time
		if err := rows.Scan(&id, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price key")
		}
		out[model.PriceKey{TickerID: id, Day: model.DayOf(d)}] = struct{}{}
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate price keys")
}

func (s *PostgresStore) LatestPriceDate(ctx context.Context) (time.Time, bool, error) {
	var d *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(date) FROM market.historical_prices`).Scan(&d); err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: latest price date")
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return d.UTC(), true, nil
}

// --- Commit ---

func (s *PostgresStore) Commit(ctx context.Context, cs *ChangeSet) (int64, error) {
	if cs.Len() == 0 {
		return 0, nil
	}
	if err := cs.validate(); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: commit: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	steps := []func(context.Context, pgx.Tx, *ChangeSet) (int64, error){
		pgInsertIndustries,
		pgInsertCompanies,
		pgUpdateCompanies,
		pgInsertCompanyIndustries,
		pgInsertTickers,
		pgWritePrices,
		pgWriteSplits,
		pgWriteSubscriptions,
		pgWriteDividends,
	}
	for _, step := range steps {
		n, err := step(ctx, tx, cs)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit: commit tx")
	}
	return total, nil
}

func pgInsertIndustries(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	for _, ind := range cs.Industries {
		if err := tx.QueryRow(ctx, sqlInsertIndustry, ind.Name, ind.Key(), ind.SectorID).Scan(&ind.ID); err != nil {
			return 0, eris.Wrapf(err, "postgres: insert industry %q", ind.Name)
		}
	}
	return int64(len(cs.Industries)), nil
}

func pgInsertCompanies(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	now := time.Now().UTC()
	for _, c := range cs.Companies {
		c.UpdatedAt = now
		if err := tx.QueryRow(ctx, sqlInsertCompany,
			c.CVMCode, c.CNPJ, c.Name, c.TradingName, c.IssuingCompany, c.IndustryClassification,
			c.HasBDR, c.HasEmissions, c.CommonShares, c.PreferredShares, c.UpdatedAt,
		).Scan(&c.ID); err != nil {
			return 0, eris.Wrapf(err, "postgres: insert company %s", c.CNPJ)
		}
	}
	return int64(len(cs.Companies)), nil
}

func pgUpdateCompanies(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	now := time.Now().UTC()
	var n int64
	for _, c := range cs.CompanyUpdates {
		c.UpdatedAt = now
		tag, err := tx.Exec(ctx, sqlUpdateCompany,
			c.CNPJ, c.CVMCode, c.Name, c.TradingName, c.IssuingCompany, c.IndustryClassification,
			c.HasBDR, c.HasEmissions, c.CommonShares, c.PreferredShares, c.UpdatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: update company %s", c.CNPJ)
		}
		n += tag.RowsAffected()
	}
	return n, nil
}

func pgInsertCompanyIndustries(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	rows := make([][]any, 0, len(cs.CompanyIndustries))
	for _, ci := range cs.CompanyIndustries {
		if ci.Company.ID == 0 {
			return 0, errUnresolved("company industry", ci.Company.CNPJ)
		}
		if ci.Industry.ID == 0 {
			return 0, errUnresolved("company industry", ci.Industry.Name)
		}
		rows = append(rows, []any{ci.Company.ID, ci.Industry.ID})
	}
	return db.CopyFrom(ctx, tx, "market.company_industries", []string{"company_id", "industry_id"}, rows)
}

func pgInsertTickers(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	for _, t := range cs.Tickers {
		if t.Company.ID == 0 {
			return 0, errUnresolved("ticker "+t.Symbol, t.Company.CNPJ)
		}
		if err := tx.QueryRow(ctx, sqlInsertTicker, t.Symbol, t.ISIN, t.Company.ID).Scan(&t.ID); err != nil {
			return 0, eris.Wrapf(err, "postgres: insert ticker %s", t.Symbol)
		}
	}
	return int64(len(cs.Tickers)), nil
}

func priceRows(prices []model.Price) [][]any {
	rows := make([][]any, len(prices))
	for i, p := range prices {
		rows[i] = []any{
			p.TickerID, p.Date.UTC(),
			numeric(p.Open), numeric(p.High), numeric(p.Low), numeric(p.Average), numeric(p.Close), numeric(p.Strike),
			dateOrNil(p.Expiration),
		}
	}
	return rows
}

func pgWritePrices(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	n, err := db.CopyFrom(ctx, tx, "market.historical_prices", priceColumns, priceRows(cs.Prices))
	if err != nil {
		return 0, err
	}
	m, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "market.historical_prices",
		Columns:      priceColumns,
		ConflictKeys: []string{"ticker_id", "date"},
	}, priceRows(cs.PriceUpdates))
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

func splitRows(splits []model.Split) ([][]any, error) {
	rows := make([][]any, len(splits))
	for i, s := range splits {
		if s.Ticker.ID == 0 {
			return nil, errUnresolved("split", s.Ticker.Symbol)
		}
		rows[i] = []any{s.Ticker.ID, s.LastDate.UTC(), s.ApprovedOn.UTC(), numeric(s.Factor), s.Type}
	}
	return rows, nil
}

func pgWriteSplits(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	return pgWriteEvents(ctx, tx, "market.splits", splitColumns, []string{"ticker_id", "last_date"},
		func() ([][]any, error) { return splitRows(cs.Splits) },
		func() ([][]any, error) { return splitRows(cs.SplitUpdates) },
	)
}

func subscriptionRows(subs []model.Subscription) ([][]any, error) {
	rows := make([][]any, len(subs))
	for i, s := range subs {
		if s.Ticker.ID == 0 {
			return nil, errUnresolved("subscription", s.Ticker.Symbol)
		}
		rows[i] = []any{s.Ticker.ID, s.LastDate.UTC(), s.ApprovedOn.UTC(), numeric(s.Percentage), numeric(s.PriceUnit)}
	}
	return rows, nil
}

func pgWriteSubscriptions(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	return pgWriteEvents(ctx, tx, "market.subscriptions", subscriptionColumns, []string{"ticker_id", "last_date"},
		func() ([][]any, error) { return subscriptionRows(cs.Subscriptions) },
		func() ([][]any, error) { return subscriptionRows(cs.SubscriptionUpdates) },
	)
}

func dividendRows(divs []model.Dividend) ([][]any, error) {
	rows := make([][]any, len(divs))
	for i, d := range divs {
		if d.Ticker.ID == 0 {
			return nil, errUnresolved("dividend", d.Ticker.Symbol)
		}
		rows[i] = []any{
			d.Ticker.ID, d.ApprovedOn.UTC(), dateOrNil(d.PriorExDate),
			numeric(d.ClosePrice), d.Type, numeric(d.Percentage), numeric(d.Value),
		}
	}
	return rows, nil
}

func pgWriteDividends(ctx context.Context, tx pgx.Tx, cs *ChangeSet) (int64, error) {
	return pgWriteEvents(ctx, tx, "market.dividends", dividendColumns, []string{"ticker_id", "approved_on"},
		func() ([][]any, error) { return dividendRows(cs.Dividends) },
		func() ([][]any, error) { return dividendRows(cs.DividendUpdates) },
	)
}

func pgWriteEvents(ctx context.Context, tx pgx.Tx, table string, cols, keys []string, inserts, updates func() ([][]any, error)) (int64, error) {
	ins, err := inserts()
	if err != nil {
		return 0, err
	}
	upd, err := updates()
	if err != nil {
		return 0, err
	}
	n, err := db.CopyFrom(ctx, tx, table, cols, ins)
	if err != nil {
		return 0, err
	}
	m, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{Table: table, Columns: cols, ConflictKeys: keys}, upd)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

// --- Runs ---

func (s *PostgresStore) StartRun(ctx context.Context, job string) (string, error) {
	id := uuid.New().String()
	if _, err := s.pool.Exec(ctx, sqlInsertRun, id, job, string(model.RunStatusRunning), time.Now().UTC()); err != nil {
		return "", eris.Wrapf(err, "postgres: start run for %s", job)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, rows int64, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run metadata")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE market.runs SET status = $1, completed_at = $2, rows = $3, metadata = $4 WHERE id = $5`,
		string(model.RunStatusComplete), time.Now().UTC(), rows, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market.runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job, status, started_at, completed_at, rows, error, metadata FROM market.runs
		 WHERE ($1 = '' OR job = $1) ORDER BY started_at DESC LIMIT $2`,
		filter.Job, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &r.Job, &status, &r.StartedAt, &r.CompletedAt, &r.Rows, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if errStr != nil {
			r.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// --- Sectors and splits ---

func (s *PostgresStore) Sectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM market.sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sectors")
	}
	defer rows.Close()

	var out []model.Sector
	for rows.Next() {
		var sec model.Sector
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sector")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sectors")
}

func (s *PostgresStore) SeedSectors(ctx context.Context, sectors []model.Sector) error {
	rows := make([][]any, 0, len(sectors))
	for _, sec := range sectors {
		rows = append(rows, []any{sec.ID, sec.Name})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "market.sectors",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}, rows)
	return eris.Wrap(err, "postgres: seed sectors")
}

func (s *PostgresStore) AssignSectors(ctx context.Context, assignments []SectorAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: assign sectors: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var n int64
	for _, a := range assignments {
		tag, err := tx.Exec(ctx,
			`UPDATE market.industries SET sector_id = $1 WHERE id = $2 OR ($2 = 0 AND name_key = $3)`,
			a.SectorID, a.IndustryID, model.FoldName(a.IndustryName),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: assign sector %d", a.SectorID)
		}
		n += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: assign sectors: commit tx")
	}
	return n, nil
}

func (s *PostgresStore) Splits(ctx context.Context, symbol string) ([]model.Split, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.symbol, t.isin, s.last_date, s.approved_on, s.factor::text, s.type
		 FROM market.splits s JOIN market.tickers t ON t.id = s.ticker_id
		 WHERE t.symbol = $1 ORDER BY s.approved_on, s.last_date`,
		symbol,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: splits for %s", symbol)
	}
	defer rows.Close()

	var ticker *model.Ticker
	var out []model.Split
	for rows.Next() {
		t := &model.Ticker{}
		var sp model.Split
		var factor string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.ISIN, &sp.LastDate, &sp.ApprovedOn, &factor, &sp.Type); err != nil {
			return nil, eris.Wrap(err, "postgres: scan split")
		}
		if ticker == nil {
			ticker = t
		}
		sp.Ticker = ticker
		sp.Factor, err = decimal.NewFromString(factor)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: parse split factor %q", factor)
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate splits")
}

// --- helpers ---

type tickerRow struct {
	id        int64
	symbol    string
	isin      string
	companyID int64
}

func linkTickers(ref *Reference, rows []tickerRow, companies map[int64]*model.Company) {
	for _, r := range rows {
		ref.Tickers[r.symbol] = &model.Ticker{
			ID:      r.id,
			Symbol:  r.symbol,
			ISIN:    r.isin,
			Company: companies[r.companyID],
		}
	}
}

type eventKeyQuery struct {
	sql    string
	target func(*Reference) map[model.EventKey]struct{}
}

var eventKeyQueries = []eventKeyQuery{
	{
		sql:    `SELECT t.symbol, e.last_date FROM market.splits e JOIN market.tickers t ON t.id = e.ticker_id`,
		target: func(r *Reference) map[model.EventKey]struct{} { return r.Splits },
	},
	{
		sql:    `SELECT t.symbol, e.last_date FROM market.subscriptions e JOIN market.tickers t ON t.id = e.ticker_id`,
		target: func(r *Reference) map[model.EventKey]struct{} { return r.Subscriptions },
	},
	{
		sql:    `SELECT t.symbol, e.approved_on FROM market.dividends e JOIN market.tickers t ON t.id = e.ticker_id`,
		target: func(r *Reference) map[model.EventKey]struct{} { return r.Dividends },
	},
}

const sqlLatestEvent = `SELECT c.cnpj, MAX(e.d) FROM (
		SELECT ticker_id, last_date AS d FROM market.splits
		UNION ALL SELECT ticker_id, last_date FROM market.subscriptions
		UNION ALL SELECT ticker_id, approved_on FROM market.dividends
	) e
	JOIN market.tickers t ON t.id = e.ticker_id
	JOIN market.companies c ON c.id = t.company_id
	GROUP BY c.cnpj`

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
