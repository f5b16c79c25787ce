package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is one daily quote of a stored ticker. Prices only ever reference
// tickers that already exist, so they carry the id directly.
type Price struct {
	TickerID   int64           `json:"ticker_id"`
	Date       time.Time       `json:"date"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Average    decimal.Decimal `json:"average"`
	Close      decimal.Decimal `json:"close"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration time.Time       `json:"expiration"`
}

// Key returns the price's natural key.
func (p Price) Key() PriceKey {
	return PriceKey{TickerID: p.TickerID, Day: DayOf(p.Date)}
}

// Split is a stock split or stock dividend, keyed by (ticker, last date).
type Split struct {
	Ticker     *Ticker         `json:"-"`
	LastDate   time.Time       `json:"last_date"`
	ApprovedOn time.Time       `json:"approved_on"`
	Factor     decimal.Decimal `json:"factor"`
	Type       string          `json:"type"`
}

// Key returns the split's natural key.
func (s Split) Key() EventKey {
	return EventKey{Symbol: s.Ticker.Symbol, Day: DayOf(s.LastDate)}
}

// Subscription is a subscription right, keyed by (ticker, last date).
type Subscription struct {
	Ticker     *Ticker         `json:"-"`
	LastDate   time.Time       `json:"last_date"`
	ApprovedOn time.Time       `json:"approved_on"`
	Percentage decimal.Decimal `json:"percentage"`
	PriceUnit  decimal.Decimal `json:"price_unit"`
}

// Key returns the subscription's natural key.
func (s Subscription) Key() EventKey {
	return EventKey{Symbol: s.Ticker.Symbol, Day: DayOf(s.LastDate)}
}

// Dividend is a cash distribution, keyed by (ticker, approval date).
type Dividend struct {
	Ticker      *Ticker         `json:"-"`
	ApprovedOn  time.Time       `json:"approved_on"`
	PriorExDate time.Time       `json:"prior_ex_date"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	Type        string          `json:"type"`
	Percentage  decimal.Decimal `json:"percentage"`
	Value       decimal.Decimal `json:"value"`
}

// Key returns the dividend's natural key.
func (d Dividend) Key() EventKey {
	return EventKey{Symbol: d.Ticker.Symbol, Day: DayOf(d.ApprovedOn)}
}

// SplitFactor is the running product of split factors up to an approval date.
type SplitFactor struct {
	ApprovedOn time.Time       `json:"approved_on"`
	Factor     decimal.Decimal `json:"factor"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// CumulativeFactors folds splits, already ordered by approval date, into
// their running product.
func CumulativeFactors(splits []Split) []SplitFactor {
	out := make([]SplitFactor, 0, len(splits))
	acc := decimal.NewFromInt(1)
	for _, s := range splits {
		acc = acc.Mul(s.Factor)
		out = append(out, SplitFactor{ApprovedOn: s.ApprovedOn, Factor: s.Factor, Cumulative: acc})
	}
	return out
}
