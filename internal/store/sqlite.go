package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/marketdata-cli/internal/model"
)

const sqliteDate = "2006-01-02"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps the commit transaction and pragmas on one handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sectors (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS industries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	name_key  TEXT NOT NULL UNIQUE,
	sector_id INTEGER REFERENCES sectors(id)
);

CREATE TABLE IF NOT EXISTS companies (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	cvm_code                INTEGER NOT NULL UNIQUE,
	cnpj                    TEXT NOT NULL UNIQUE,
	name                    TEXT NOT NULL,
	trading_name            TEXT NOT NULL DEFAULT '',
	issuing_company         TEXT NOT NULL DEFAULT '',
	industry_classification TEXT NOT NULL DEFAULT '',
	has_bdr                 INTEGER NOT NULL DEFAULT 0,
	has_emissions           INTEGER NOT NULL DEFAULT 0,
	common_shares           INTEGER NOT NULL DEFAULT 0,
	preferred_shares        INTEGER NOT NULL DEFAULT 0,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_industries (
	company_id  INTEGER NOT NULL REFERENCES companies(id),
	industry_id INTEGER NOT NULL REFERENCES industries(id),
	PRIMARY KEY (company_id, industry_id)
);

CREATE TABLE IF NOT EXISTS tickers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT NOT NULL UNIQUE,
	isin       TEXT NOT NULL,
	company_id INTEGER NOT NULL REFERENCES companies(id)
);

CREATE TABLE IF NOT EXISTS historical_prices (
	ticker_id  INTEGER NOT NULL REFERENCES tickers(id),
	date       TEXT NOT NULL,
	open       TEXT NOT NULL,
	high       TEXT NOT NULL,
	low        TEXT NOT NULL,
	average    TEXT NOT NULL,
	close      TEXT NOT NULL,
	strike     TEXT NOT NULL,
	expiration TEXT,
	PRIMARY KEY (ticker_id, date)
);

CREATE TABLE IF NOT EXISTS splits (
	ticker_id   INTEGER NOT NULL REFERENCES tickers(id),
	last_date   TEXT NOT NULL,
	approved_on TEXT NOT NULL,
	factor      TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (ticker_id, last_date)
);

CREATE TABLE IF NOT EXISTS subscriptions (
	ticker_id   INTEGER NOT NULL REFERENCES tickers(id),
	last_date   TEXT NOT NULL,
	approved_on TEXT NOT NULL,
	percentage  TEXT NOT NULL,
	price_unit  TEXT NOT NULL,
	PRIMARY KEY (ticker_id, last_date)
);

CREATE TABLE IF NOT EXISTS dividends (
	ticker_id     INTEGER NOT NULL REFERENCES tickers(id),
	approved_on   TEXT NOT NULL,
	prior_ex_date TEXT,
	close_price   TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT '',
	percentage    TEXT NOT NULL,
	value         TEXT NOT NULL,
	PRIMARY KEY (ticker_id, approved_on)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	rows         INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_tickers_company ON tickers(company_id);
CREATE INDEX IF NOT EXISTS idx_historical_prices_date ON historical_prices(date);
CREATE INDEX IF NOT EXISTS idx_runs_job_started ON runs(job, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Snapshots ---

func (s *SQLiteStore) LoadReference(ctx context.Context) (*Reference, error) {
	ref := NewReference()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sector_id FROM industries`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load industries")
	}
	for rows.Next() {
		ind := &model.Industry{}
		var sector sql.NullInt64
		if err := rows.Scan(&ind.ID, &ind.Name, &sector); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan industry")
		}
		if sector.Valid {
			ind.SectorID = &sector.Int64
		}
		ref.Industries[ind.Key()] = ind
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	companiesByID := make(map[int64]*model.Company)
	rows, err = s.db.QueryContext(ctx, `SELECT id, cvm_code, cnpj, name, trading_name, issuing_company, industry_classification,
		has_bdr, has_emissions, common_shares, preferred_shares, updated_at FROM companies`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load companies")
	}
	for rows.Next() {
		c := &model.Company{}
		var updated string
		if err := rows.Scan(&c.ID, &c.CVMCode, &c.CNPJ, &c.Name, &c.TradingName, &c.IssuingCompany,
			&c.IndustryClassification, &c.HasBDR, &c.HasEmissions, &c.CommonShares, &c.PreferredShares, &updated); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		ref.Companies[c.CNPJ] = c
		companiesByID[c.ID] = c
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT c.cnpj, i.name FROM company_industries ci
		JOIN companies c ON c.id = ci.company_id
		JOIN industries i ON i.id = ci.industry_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load company industries")
	}
	for rows.Next() {
		var cnpj, name string
		if err := rows.Scan(&cnpj, &name); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan company industry")
		}
		ref.CompanyIndustries[model.CompanyIndustryKey{CNPJ: cnpj, Industry: model.FoldName(name)}] = struct{}{}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	var tickers []tickerRow
	rows, err = s.db.QueryContext(ctx, `SELECT id, symbol, isin, company_id FROM tickers`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load tickers")
	}
	for rows.Next() {
		var r tickerRow
		if err := rows.Scan(&r.id, &r.symbol, &r.isin, &r.companyID); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan ticker")
		}
		tickers = append(tickers, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	linkTickers(ref, tickers, companiesByID)

	for _, q := range []struct {
		sql  string
		into map[model.EventKey]struct{}
	}{
		{`SELECT t.symbol, e.last_date FROM splits e JOIN tickers t ON t.id = e.ticker_id`, ref.Splits},
		{`SELECT t.symbol, e.last_date FROM subscriptions e JOIN tickers t ON t.id = e.ticker_id`, ref.Subscriptions},
		{`SELECT t.symbol, e.approved_on FROM dividends e JOIN tickers t ON t.id = e.ticker_id`, ref.Dividends},
	} {
		if err := s.loadEventKeys(ctx, q.sql, q.into); err != nil {
			return nil, err
		}
	}

	rows, err = s.db.QueryContext(ctx, `SELECT c.cnpj, MAX(e.d) FROM (
			SELECT ticker_id, last_date AS d FROM splits
			UNION ALL SELECT ticker_id, last_date FROM subscriptions
			UNION ALL SELECT ticker_id, approved_on FROM dividends
		) e
		JOIN tickers t ON t.id = e.ticker_id
		JOIN companies c ON c.id = t.company_id
		GROUP BY c.cnpj`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load latest events")
	}
	for rows.Next() {
		var cnpj, d string
		if err := rows.Scan(&cnpj, &d); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan latest event")
		}
		ref.LatestEvent[cnpj] = parseSQLiteDate(d)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *SQLiteStore) loadEventKeys(ctx context.Context, query string, into map[model.EventKey]struct{}) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: load event keys")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var symbol, d string
		if err := rows.Scan(&symbol, &d); err != nil {
			return eris.Wrap(err, "sqlite: scan event key")
		}
		into[model.EventKey{Symbol: symbol, Day: model.DayOf(parseSQLiteDate(d))}] = struct{}{}
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate event keys")
}

func (s *SQLiteStore) LoadTickers(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, id FROM tickers`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load tickers")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var id int64
		if err := rows.Scan(&symbol, &id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ticker")
		}
		out[symbol] = id
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tickers")
}

func (s *SQLiteStore) LoadPriceKeys(ctx context.Context, from, to time.Time) (map[model.PriceKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker_id, date FROM historical_prices WHERE date BETWEEN ? AND ?`,
		sqliteDateString(from), sqliteDateString(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load price keys")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.PriceKey]struct{})
	for rows.Next() {
		var id int64
		var d string
		if err := rows.Scan(&id, &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price key")
		}
		out[model.PriceKey{TickerID: id, Day: model.DayOf(parseSQLiteDate(d))}] = struct{}{}
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate price keys")
}

func (s *SQLiteStore) LatestPriceDate(ctx context.Context) (time.Time, bool, error) {
	var d sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM historical_prices`).Scan(&d); err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: latest price date")
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, false, nil
	}
	return parseSQLiteDate(d.String), true, nil
}

// --- Commit ---

func (s *SQLiteStore) Commit(ctx context.Context, cs *ChangeSet) (int64, error) {
	if cs.Len() == 0 {
		return 0, nil
	}
	if err := cs.validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: commit: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, step := range []func(context.Context, *sql.Tx, *ChangeSet) (int64, error){
		liteInsertIndustries,
		liteWriteCompanies,
		liteInsertCompanyIndustries,
		liteInsertTickers,
		liteWritePrices,
		liteWriteSplits,
		liteWriteSubscriptions,
		liteWriteDividends,
	} {
		n, err := step(ctx, tx, cs)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit: commit tx")
	}
	return total, nil
}

func liteInsertIndustries(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	for _, ind := range cs.Industries {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO industries (name, name_key, sector_id) VALUES (?, ?, ?) RETURNING id`,
			ind.Name, ind.Key(), ind.SectorID,
		).Scan(&ind.ID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert industry %q", ind.Name)
		}
	}
	return int64(len(cs.Industries)), nil
}

func liteWriteCompanies(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	now := time.Now().UTC()
	for _, c := range cs.Companies {
		c.UpdatedAt = now
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO companies (cvm_code, cnpj, name, trading_name, issuing_company, industry_classification,
				has_bdr, has_emissions, common_shares, preferred_shares, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			c.CVMCode, c.CNPJ, c.Name, c.TradingName, c.IssuingCompany, c.IndustryClassification,
			c.HasBDR, c.HasEmissions, c.CommonShares, c.PreferredShares, now.Format(time.RFC3339Nano),
		).Scan(&c.ID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert company %s", c.CNPJ)
		}
	}
	n := int64(len(cs.Companies))
	for _, c := range cs.CompanyUpdates {
		c.UpdatedAt = now
		res, err := tx.ExecContext(ctx,
			`UPDATE companies SET cvm_code = ?, name = ?, trading_name = ?, issuing_company = ?, industry_classification = ?,
				has_bdr = ?, has_emissions = ?, common_shares = ?, preferred_shares = ?, updated_at = ? WHERE cnpj = ?`,
			c.CVMCode, c.Name, c.TradingName, c.IssuingCompany, c.IndustryClassification,
			c.HasBDR, c.HasEmissions, c.CommonShares, c.PreferredShares, now.Format(time.RFC3339Nano), c.CNPJ,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: update company %s", c.CNPJ)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, nil
}

func liteInsertCompanyIndustries(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	if len(cs.CompanyIndustries) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO company_industries (company_id, industry_id) VALUES (?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare company industry insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, ci := range cs.CompanyIndustries {
		if ci.Company.ID == 0 {
			return 0, errUnresolved("company industry", ci.Company.CNPJ)
		}
		if ci.Industry.ID == 0 {
			return 0, errUnresolved("company industry", ci.Industry.Name)
		}
		if _, err := stmt.ExecContext(ctx, ci.Company.ID, ci.Industry.ID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert company industry %s/%s", ci.Company.CNPJ, ci.Industry.Name)
		}
	}
	return int64(len(cs.CompanyIndustries)), nil
}

func liteInsertTickers(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	for _, t := range cs.Tickers {
		if t.Company.ID == 0 {
			return 0, errUnresolved("ticker "+t.Symbol, t.Company.CNPJ)
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO tickers (symbol, isin, company_id) VALUES (?, ?, ?) RETURNING id`,
			t.Symbol, t.ISIN, t.Company.ID,
		).Scan(&t.ID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert ticker %s", t.Symbol)
		}
	}
	return int64(len(cs.Tickers)), nil
}

const (
	liteInsertPrice = `INSERT INTO historical_prices (ticker_id, date, open, high, low, average, close, strike, expiration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	liteUpsertPrice = liteInsertPrice + ` ON CONFLICT (ticker_id, date) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low, average = excluded.average,
		close = excluded.close, strike = excluded.strike, expiration = excluded.expiration`
)

func liteWritePrices(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	args := func(p model.Price) []any {
		return []any{
			p.TickerID, sqliteDateString(p.Date),
			p.Open.String(), p.High.String(), p.Low.String(), p.Average.String(), p.Close.String(), p.Strike.String(),
			sqliteNullDate(p.Expiration),
		}
	}
	n, err := execEach(ctx, tx, liteInsertPrice, len(cs.Prices), func(i int) []any { return args(cs.Prices[i]) })
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert prices")
	}
	m, err := execEach(ctx, tx, liteUpsertPrice, len(cs.PriceUpdates), func(i int) []any { return args(cs.PriceUpdates[i]) })
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update prices")
	}
	return n + m, nil
}

const (
	liteInsertSplit = `INSERT INTO splits (ticker_id, last_date, approved_on, factor, type) VALUES (?, ?, ?, ?, ?)`
	liteUpsertSplit = liteInsertSplit + ` ON CONFLICT (ticker_id, last_date) DO UPDATE SET
		approved_on = excluded.approved_on, factor = excluded.factor, type = excluded.type`
)

func liteWriteSplits(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	args := func(list []model.Split) func(int) []any {
		return func(i int) []any {
			s := list[i]
			return []any{s.Ticker.ID, sqliteDateString(s.LastDate), sqliteDateString(s.ApprovedOn), s.Factor.String(), s.Type}
		}
	}
	if err := resolvedEvents("split", len(cs.Splits)+len(cs.SplitUpdates), func(i int) *model.Ticker {
		if i < len(cs.Splits) {
			return cs.Splits[i].Ticker
		}
		return cs.SplitUpdates[i-len(cs.Splits)].Ticker
	}); err != nil {
		return 0, err
	}
	n, err := execEach(ctx, tx, liteInsertSplit, len(cs.Splits), args(cs.Splits))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert splits")
	}
	m, err := execEach(ctx, tx, liteUpsertSplit, len(cs.SplitUpdates), args(cs.SplitUpdates))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update splits")
	}
	return n + m, nil
}

const (
	liteInsertSubscription = `INSERT INTO subscriptions (ticker_id, last_date, approved_on, percentage, price_unit) VALUES (?, ?, ?, ?, ?)`
	liteUpsertSubscription = liteInsertSubscription + ` ON CONFLICT (ticker_id, last_date) DO UPDATE SET
		approved_on = excluded.approved_on, percentage = excluded.percentage, price_unit = excluded.price_unit`
)

func liteWriteSubscriptions(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	args := func(list []model.Subscription) func(int) []any {
		return func(i int) []any {
			s := list[i]
			return []any{s.Ticker.ID, sqliteDateString(s.LastDate), sqliteDateString(s.ApprovedOn), s.Percentage.String(), s.PriceUnit.String()}
		}
	}
	if err := resolvedEvents("subscription", len(cs.Subscriptions)+len(cs.SubscriptionUpdates), func(i int) *model.Ticker {
		if i < len(cs.Subscriptions) {
			return cs.Subscriptions[i].Ticker
		}
		return cs.SubscriptionUpdates[i-len(cs.Subscriptions)].Ticker
	}); err != nil {
		return 0, err
	}
	n, err := execEach(ctx, tx, liteInsertSubscription, len(cs.Subscriptions), args(cs.Subscriptions))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert subscriptions")
	}
	m, err := execEach(ctx, tx, liteUpsertSubscription, len(cs.SubscriptionUpdates), args(cs.SubscriptionUpdates))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update subscriptions")
	}
	return n + m, nil
}

const (
	liteInsertDividend = `INSERT INTO dividends (ticker_id, approved_on, prior_ex_date, close_price, type, percentage, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	liteUpsertDividend = liteInsertDividend + ` ON CONFLICT (ticker_id, approved_on) DO UPDATE SET
		prior_ex_date = excluded.prior_ex_date, close_price = excluded.close_price, type = excluded.type,
		percentage = excluded.percentage, value = excluded.value`
)

func liteWriteDividends(ctx context.Context, tx *sql.Tx, cs *ChangeSet) (int64, error) {
	args := func(list []model.Dividend) func(int) []any {
		return func(i int) []any {
			d := list[i]
			return []any{
				d.Ticker.ID, sqliteDateString(d.ApprovedOn), sqliteNullDate(d.PriorExDate),
				d.ClosePrice.String(), d.Type, d.Percentage.String(), d.Value.String(),
			}
		}
	}
	if err := resolvedEvents("dividend", len(cs.Dividends)+len(cs.DividendUpdates), func(i int) *model.Ticker {
		if i < len(cs.Dividends) {
			return cs.Dividends[i].Ticker
		}
		return cs.DividendUpdates[i-len(cs.Dividends)].Ticker
	}); err != nil {
		return 0, err
	}
	n, err := execEach(ctx, tx, liteInsertDividend, len(cs.Dividends), args(cs.Dividends))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert dividends")
	}
	m, err := execEach(ctx, tx, liteUpsertDividend, len(cs.DividendUpdates), args(cs.DividendUpdates))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update dividends")
	}
	return n + m, nil
}

// execEach runs a prepared statement once per row.
func execEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, err
		}
		affected, _ := res.RowsAffected()
		total += affected
	}
	return total, nil
}

func resolvedEvents(what string, n int, ticker func(i int) *model.Ticker) error {
	for i := 0; i < n; i++ {
		if t := ticker(i); t.ID == 0 {
			return errUnresolved(what, t.Symbol)
		}
	}
	return nil
}

// --- Runs ---

func (s *SQLiteStore) StartRun(ctx context.Context, job string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, status, started_at) VALUES (?, ?, ?, ?)`,
		id, job, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start run for %s", job)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, rows int64, metadata map[string]any) error {
	var meta any
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run metadata")
		}
		meta = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, rows = ?, metadata = ? WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC(), rows, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) FailRun(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job, status, started_at, completed_at, rows, error, metadata FROM runs
		 WHERE (? = '' OR job = ?) ORDER BY started_at DESC LIMIT ?`,
		filter.Job, filter.Job, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// --- Sectors and splits ---

func (s *SQLiteStore) Sectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sectors")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Sector
	for rows.Next() {
		var sec model.Sector
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sector")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sectors")
}

func (s *SQLiteStore) SeedSectors(ctx context.Context, sectors []model.Sector) error {
	for _, sec := range sectors {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO sectors (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
			sec.ID, sec.Name,
		); err != nil {
			return eris.Wrapf(err, "sqlite: seed sector %d", sec.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) AssignSectors(ctx context.Context, assignments []SectorAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: assign sectors: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, a := range assignments {
		res, err := tx.ExecContext(ctx,
			`UPDATE industries SET sector_id = ? WHERE id = ? OR (? = 0 AND name_key = ?)`,
			a.SectorID, a.IndustryID, a.IndustryID, model.FoldName(a.IndustryName),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: assign sector %d", a.SectorID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: assign sectors: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) Splits(ctx context.Context, symbol string) ([]model.Split, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.symbol, t.isin, s.last_date, s.approved_on, s.factor, s.type
		 FROM splits s JOIN tickers t ON t.id = s.ticker_id
		 WHERE t.symbol = ? ORDER BY s.approved_on, s.last_date`,
		symbol,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: splits for %s", symbol)
	}
	defer rows.Close() //nolint:errcheck

	var ticker *model.Ticker
	var out []model.Split
	for rows.Next() {
		t := &model.Ticker{}
		var last, approved, factor string
		var sp model.Split
		if err := rows.Scan(&t.ID, &t.Symbol, &t.ISIN, &last, &approved, &factor, &sp.Type); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan split")
		}
		if ticker == nil {
			ticker = t
		}
		sp.Ticker = ticker
		sp.LastDate = parseSQLiteDate(last)
		sp.ApprovedOn = parseSQLiteDate(approved)
		sp.Factor, err = decimal.NewFromString(factor)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse split factor %q", factor)
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate splits")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var completed sql.NullTime
	var errStr, meta sql.NullString
	if err := row.Scan(&r.ID, &r.Job, &status, &r.StartedAt, &completed, &r.Rows, &errStr, &meta); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	r.Error = errStr.String
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &r.Metadata)
	}
	return &r, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck
		return eris.Wrap(err, "sqlite: iterate rows")
	}
	return eris.Wrap(rows.Close(), "sqlite: close rows")
}

func sqliteDateString(t time.Time) string {
	return t.UTC().Format(sqliteDate)
}

func sqliteNullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return sqliteDateString(t)
}

func parseSQLiteDate(s string) time.Time {
	if len(s) > len(sqliteDate) {
		s = s[:len(sqliteDate)]
	}
	t, _ := time.Parse(sqliteDate, s)
	return t
}
