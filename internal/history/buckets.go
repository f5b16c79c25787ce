// Package history loads daily quotes from B3's COTAHIST archives. Each
// archive covers one bucket (a day, a month or a year) and holds a single
// fixed-width text file.
package history

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the prefix every archive URL starts with.
const DefaultBaseURL = "https://bvmf.bmfbovespa.com.br/InstDados/SerHist/COTAHIST_"

// BucketKind is the period one archive covers.
type BucketKind string

const (
	Day   BucketKind = "day"
	Month BucketKind = "month"
	Year  BucketKind = "year"
)

// ParseBucketKind accepts day, month or year. Empty means day.
func ParseBucketKind(s string) (BucketKind, error) {
	switch k := BucketKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return Day, nil
	case Day, Month, Year:
		return k, nil
	default:
		return "", eris.Errorf("history: unknown bucket %q (want day, month or year)", s)
	}
}

// code is the letter B3 puts in the file name.
func (k BucketKind) code() string {
	switch k {
	case Month:
		return "M"
	case Year:
		return "A"
	default:
		return "D"
	}
}

func (k BucketKind) layout() string {
	switch k {
	case Month:
		return "012006"
	case Year:
		return "2006"
	default:
		return "02012006"
	}
}

// BucketURL renders the archive URL of the bucket holding date, e.g.
// base+"D02012024.ZIP", base+"M012024.ZIP" or base+"A2024.ZIP".
func BucketURL(base string, kind BucketKind, date time.Time) string {
	return base + kind.code() + date.Format(kind.layout()) + ".ZIP"
}

// Buckets lists the buckets covering [from, to], both inclusive. Day buckets
// skip Saturdays and Sundays when skipWeekends is set. Month buckets are the
// first of each month and year buckets January 1st.
func Buckets(kind BucketKind, from, to time.Time, skipWeekends bool) []time.Time {
	from, to = dateOf(from), dateOf(to)
	if to.Before(from) {
		return nil
	}

	var out []time.Time
	switch kind {
	case Month:
		for d := firstOfMonth(from); !d.After(to); d = d.AddDate(0, 1, 0) {
			out = append(out, d)
		}
	case Year:
		for y := from.Year(); y <= to.Year(); y++ {
			out = append(out, time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
		}
	default:
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if skipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// WidenRange stretches [from, to] to whole months or years so that an index
// of stored keys covers every day an archive of that kind may contain.
func WidenRange(kind BucketKind, from, to time.Time) (time.Time, time.Time) {
	from, to = dateOf(from), dateOf(to)
	switch kind {
	case Month:
		return firstOfMonth(from), firstOfMonth(to).AddDate(0, 1, -1)
	case Year:
		return time.Date(from.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(to.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return from, to
	}
}

// FirstDay is where an empty store starts loading.
var FirstDay = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultStart resumes the day after the newest stored quote, or FirstDay on
// an empty store.
func DefaultStart(latest time.Time, ok bool) time.Time {
	if !ok {
		return FirstDay
	}
	return dateOf(latest).AddDate(0, 0, 1)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
