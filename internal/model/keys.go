package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const secondsPerDay = 24 * 60 * 60

// DayOf returns the UTC calendar day of t as days since the Unix epoch.
func DayOf(t time.Time) int32 {
	y, m, d := t.Date()
	u := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	if u < 0 {
		return int32((u - secondsPerDay + 1) / secondsPerDay)
	}
	return int32(u / secondsPerDay)
}

// DayTime is the inverse of DayOf.
func DayTime(day int32) time.Time {
	return time.Unix(int64(day)*secondsPerDay, 0).UTC()
}

// PriceKey identifies a price: (ticker id, trading day).
type PriceKey struct {
	TickerID int64
	Day      int32
}

// EventKey identifies a corporate event of a ticker on a given day.
type EventKey struct {
	Symbol string
	Day    int32
}

// CompanyIndustryKey identifies a company/industry association.
type CompanyIndustryKey struct {
	CNPJ     string
	Industry string
}

var folder = cases.Fold()

// FoldName returns the case-insensitive identity of a name: NFC normalized,
// whitespace trimmed and Unicode case folded.
func FoldName(s string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(s)))
}

// stockTypeDigits maps B3 share-class labels to the trailing digit of their
// ticker symbol.
var stockTypeDigits = map[string]byte{
	"ON":  '3',
	"PN":  '4',
	"PNA": '5',
	"PNB": '6',
	"PNC": '7',
	"PND": '8',
}

// StockTypeDigit returns the symbol digit for a share-class label such as
// "ON" or "PNA". Unknown labels (UNT among them) report false.
func StockTypeDigit(label string) (byte, bool) {
	d, ok := stockTypeDigits[strings.ToUpper(strings.TrimSpace(label))]
	return d, ok
}

// TickerForStockType picks the 5-character symbol among tickers whose last
// digit matches the share-class label.
func TickerForStockType(tickers []*Ticker, label string) *Ticker {
	d, ok := StockTypeDigit(label)
	if !ok {
		return nil
	}
	for _, t := range tickers {
		if len(t.Symbol) == 5 && t.Symbol[4] == d {
			return t
		}
	}
	return nil
}

// TickerForISIN picks the ticker whose ISIN matches.
func TickerForISIN(tickers []*Ticker, isin string) *Ticker {
	isin = strings.TrimSpace(isin)
	if isin == "" {
		return nil
	}
	for _, t := range tickers {
		if strings.EqualFold(t.ISIN, isin) {
			return t
		}
	}
	return nil
}
