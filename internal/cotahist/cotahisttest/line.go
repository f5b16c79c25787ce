// Package cotahisttest builds COTAHIST fixtures for tests.
package cotahisttest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
)

// Quote is the subset of a COTAHIST data line the decoder reads. Prices are
// in cents.
type Quote struct {
	Symbol     string
	Date       time.Time
	Open       int64
	High       int64
	Low        int64
	Average    int64
	Close      int64
	Strike     int64
	Expiration time.Time
}

// Line renders q as a 245-byte data line (type "01", no line terminator).
func Line(q Quote) string {
	b := []byte(strings.Repeat(" ", 245))
	put := func(at int, s string) { copy(b[at:], s) }

	put(0, "01")
	put(2, q.Date.Format("20060102"))
	put(10, "02")
	put(12, fmt.Sprintf("%-12s", q.Symbol))
	put(24, "010")
	put(56, price(q.Open))
	put(69, price(q.High))
	put(82, price(q.Low))
	put(95, price(q.Average))
	put(108, price(q.Close))
	put(188, price(q.Strike))
	exp := "99991231"
	if !q.Expiration.IsZero() {
		exp = q.Expiration.Format("20060102")
	}
	put(202, exp)
	return string(b)
}

// Header and Trailer render the sentinel records.
func Header() string  { return pad("00COTAHIST.2024BOVESPA 20240102") }
func Trailer() string { return pad("99COTAHIST.2024BOVESPA 2024010200000000003") }

// File joins a header, the quotes and a trailer with CRLF terminators.
func File(quotes ...Quote) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header() + "\r\n")
	for _, q := range quotes {
		buf.WriteString(Line(q) + "\r\n")
	}
	buf.WriteString(Trailer() + "\r\n")
	return buf.Bytes()
}

// WriteZIP stores content as the single entry of a ZIP archive at path.
func WriteZIP(path, entry string, content []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	fw, err := w.Create(entry)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	return w.Close()
}

// ZIP returns an in-memory archive with a single entry.
func ZIP(entry string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(entry)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func price(cents int64) string {
	return fmt.Sprintf("%013d", cents)
}

func pad(s string) string {
	return s + strings.Repeat(" ", 245-len(s))
}
