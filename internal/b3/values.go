package b3

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Number is a decimal that B3 sends either as a JSON number or as a pt-BR
// formatted string ("1.234,56"). Null and "" decode to zero.
type Number struct {
	decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		n.Decimal = decimal.Zero
		return nil
	}
	if data[0] != '"' {
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return eris.Wrapf(err, "b3: number %s", data)
		}
		n.Decimal = d
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "b3: number string")
	}
	d, err := ParseDecimalBR(s)
	if err != nil {
		return err
	}
	n.Decimal = d
	return nil
}

// MarshalJSON writes a bare JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// ParseDecimalBR parses "1.234,56" style numbers. "." groups thousands and ","
// is the decimal separator.
func ParseDecimalBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	norm := strings.ReplaceAll(s, ".", "")
	norm = strings.Replace(norm, ",", ".", 1)
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Zero, eris.Errorf("b3: invalid pt-BR number %q", s)
	}
	return d, nil
}

// Count is an integer sent as a JSON number or a pt-BR string with
// thousands separators ("5.602.042.788").
type Count int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "b3: count string")
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
		if s == "" {
			*c = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return eris.Errorf("b3: invalid count %q", s)
	}
	*c = Count(v)
	return nil
}

// DateLayout is the pt-BR date format B3 uses in ancillary payloads.
const DateLayout = "02/01/2006"

// Date is a calendar date sent as "dd/MM/yyyy" or, in a few payloads, as an
// ISO timestamp. Null and "" decode to the zero time.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "b3: date")
	}
	t, err := ParseDateBR(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON writes "dd/MM/yyyy", or null for the zero date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// ParseDateBR parses "dd/MM/yyyy", "yyyy-MM-dd" and "yyyy-MM-ddTHH:mm:ss"
// into a UTC midnight date.
func ParseDateBR(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{DateLayout, "2006-01-02T15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("b3: invalid date %q", s)
}
