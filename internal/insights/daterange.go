package insights

import (
	"net/url"
	"regexp"
	"time"
)

// DateLayout is the only accepted form for range bounds.
const DateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Range is a date range for an insights report. The zero Range covers the
// full history.
type Range struct {
	Start time.Time
	// End is the last day included.
	End time.Time
}

// ParseRange reads the start and end form values. If either is malformed,
// or start is not strictly before end, it returns the zero Range and false
// so callers fall back to the full history.
func ParseRange(start, end string) (Range, bool) {
	s, ok := parseDate(start)
	if !ok {
		return Range{}, false
	}
	e, ok := parseDate(end)
	if !ok {
		return Range{}, false
	}
	if !s.Before(e) {
		return Range{}, false
	}
	return Range{Start: s, End: e}, true
}

func parseDate(s string) (time.Time, bool) {
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsZero reports whether the range covers the full history.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Bounds returns the half-open interval [from, to) of timestamps inside the
// range. Both are zero for the full history.
func (r Range) Bounds() (from, to time.Time) {
	if r.IsZero() {
		return time.Time{}, time.Time{}
	}
	return r.Start, r.End.AddDate(0, 0, 1)
}

// Fingerprint identifies the range inside chart cache keys.
func (r Range) Fingerprint() string {
	if r.IsZero() {
		return "all"
	}
	return r.Start.Format("20060102") + "-" + r.End.Format("20060102")
}

// Query encodes the range as URL query values, empty for the full history.
func (r Range) Query() url.Values {
	q := url.Values{}
	if !r.IsZero() {
		q.Set("start", r.Start.Format(DateLayout))
		q.Set("end", r.End.Format(DateLayout))
	}
	return q
}
