// Package cotahist decodes B3 COTAHIST fixed-width price history files.
//
// A data line is 245 bytes of ASCII (a trailing CR/LF is tolerated). The
// first and last lines of every file are header/trailer records whose first
// three bytes are "00C" and "99C".
package cotahist

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field offsets, 0-based, end exclusive.
const (
	dateStart   = 2
	dateEnd     = 10
	symbolStart = 12
	symbolEnd   = 24
	openStart   = 56
	highStart   = 69
	lowStart    = 82
	avgStart    = 95
	closeStart  = 108
	strikeStart = 188
	expiryStart = 202
	expiryEnd   = 210

	priceWidth = 13

	// MinLineLen and MaxLineLen bound an accepted line after CR/LF trimming.
	MinLineLen = 245
	MaxLineLen = 247
)

// Record is one decoded price line.
type Record struct {
	TickerID   int64
	Date       time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Average    decimal.Decimal
	Close      decimal.Decimal
	Strike     decimal.Decimal
	Expiration time.Time
}

// Index resolves a trimmed symbol to a ticker id. Implementations must not
// retain the slice.
type Index interface {
	Lookup(symbol []byte) (int64, bool)
}

// SymbolIndex is a map-backed Index.
type SymbolIndex map[string]int64

// Lookup implements Index. The string conversion in the map index does not
// allocate.
func (s SymbolIndex) Lookup(symbol []byte) (int64, bool) {
	id, ok := s[string(symbol)]
	return id, ok
}

// Reject says why a line produced no record.
type Reject uint8

const (
	Accepted Reject = iota
	Sentinel
	Malformed
	UnknownSymbol
)

func (r Reject) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Sentinel:
		return "sentinel"
	case Malformed:
		return "malformed"
	case UnknownSymbol:
		return "unknown_symbol"
	default:
		return "unknown"
	}
}

// IsSentinel reports whether line is a header or trailer record.
func IsSentinel(line []byte) bool {
	return len(line) >= 3 &&
		((line[0] == '0' && line[1] == '0') || (line[0] == '9' && line[1] == '9')) &&
		line[2] == 'C'
}

// TrimEOL strips trailing CR and LF bytes.
func TrimEOL(line []byte) []byte {
	n := len(line)
	for n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		n--
	}
	return line[:n]
}

// ParseLine decodes one line. The slice is only borrowed; the returned
// Record does not alias it.
func ParseLine(line []byte, idx Index) (Record, Reject) {
	if IsSentinel(line) {
		return Record{}, Sentinel
	}
	line = TrimEOL(line)
	if len(line) < MinLineLen || len(line) > MaxLineLen {
		return Record{}, Malformed
	}

	symbol := trimRight(line[symbolStart:symbolEnd])
	id, ok := idx.Lookup(symbol)
	if !ok {
		return Record{}, UnknownSymbol
	}

	var rec Record
	rec.TickerID = id

	if rec.Date, ok = ParseDate(line[dateStart:dateEnd]); !ok {
		return Record{}, Malformed
	}
	if rec.Expiration, ok = ParseDate(line[expiryStart:expiryEnd]); !ok {
		return Record{}, Malformed
	}

	prices := [...]struct {
		dst   *decimal.Decimal
		start int
	}{
		{&rec.Open, openStart},
		{&rec.High, highStart},
		{&rec.Low, lowStart},
		{&rec.Average, avgStart},
		{&rec.Close, closeStart},
		{&rec.Strike, strikeStart},
	}
	for _, p := range prices {
		if *p.dst, ok = ParsePrice(line[p.start : p.start+priceWidth]); !ok {
			return Record{}, Malformed
		}
	}
	return rec, Accepted
}

// ParseDate decodes an 8-byte YYYYMMDD field by digit arithmetic. An
// all-zero field decodes to the zero time.
func ParseDate(b []byte) (time.Time, bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	var d [8]int
	zero := true
	for i, c := range b {
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
		d[i] = int(c - '0')
		if c != '0' {
			zero = false
		}
	}
	if zero {
		return time.Time{}, true
	}
	year := d[0]*1000 + d[1]*100 + d[2]*10 + d[3]
	month := d[4]*10 + d[5]
	day := d[6]*10 + d[7]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 31 April, 30 February and the like.
		return time.Time{}, false
	}
	return t, true
}

// ParseDayStamp decodes an 8-byte DDMMYYYY stamp, the form used in daily
// file names (COTAHIST_D01012024.TXT).
func ParseDayStamp(b []byte) (time.Time, bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	var ymd [8]byte
	copy(ymd[0:4], b[4:8])
	copy(ymd[4:6], b[2:4])
	copy(ymd[6:8], b[0:2])
	t, ok := ParseDate(ymd[:])
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// ParsePrice decodes an unsigned fixed-point field with two implied decimals.
func ParsePrice(b []byte) (decimal.Decimal, bool) {
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return decimal.Decimal{}, false
		}
		n = n*10 + int64(c-'0')
	}
	return decimal.New(n, -2), true
}

func trimRight(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == ' ' {
		n--
	}
	return b[:n]
}
