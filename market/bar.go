package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Required bar columns. Every input table must carry all of them.
const (
	FieldTime   = "timestamp"
	FieldOpen   = "open"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldClose  = "close"
	FieldVolume = "volume"
)

var RequiredFields = []string{FieldTime, FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

var (
	ErrUnsorted           = errors.New("timestamps are not sorted ascending")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrEmptySeries        = errors.New("series has no bars")
)

// MissingFieldError reports a bar field the run needs but the input lacks.
type MissingFieldError struct {
	Series string
	Field  string
}

func (e *MissingFieldError) Error() string {
	if e.Series == "" {
		return fmt.Sprintf("missing field %q", e.Field)
	}
	return fmt.Sprintf("%s: missing field %q", e.Series, e.Field)
}

// Bar is one OHLCV row plus named factor values (Fields) and categorical
// labels (Labels). Bars are treated as immutable once a Series is built;
// functions that derive new columns copy the maps first.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	Fields map[string]float64
	Labels map[string]string
}

// Value returns a numeric value by name, including the OHLCV columns.
func (b Bar) Value(name string) (float64, bool) {
	switch name {
	case FieldOpen:
		return b.Open, true
	case FieldHigh:
		return b.High, true
	case FieldLow:
		return b.Low, true
	case FieldClose:
		return b.Close, true
	case FieldVolume:
		return b.Volume, true
	}
	v, ok := b.Fields[name]
	return v, ok
}

func (b Bar) Label(name string) (string, bool) {
	v, ok := b.Labels[name]
	return v, ok
}

// Has reports whether the bar carries name as a number or a label.
func (b Bar) Has(name string) bool {
	if _, ok := b.Value(name); ok {
		return true
	}
	_, ok := b.Labels[name]
	return ok
}

// Clone returns a copy whose maps can be written without touching b.
func (b Bar) Clone() Bar {
	out := b
	out.Fields = make(map[string]float64, len(b.Fields)+2)
	for k, v := range b.Fields {
		out.Fields[k] = v
	}
	out.Labels = make(map[string]string, len(b.Labels)+2)
	for k, v := range b.Labels {
		out.Labels[k] = v
	}
	return out
}

// Series is an ordered bar table for one symbol and timeframe.
type Series struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

func (s Series) Name() string {
	switch {
	case s.Symbol == "" && s.Timeframe == "":
		return "series"
	case s.Timeframe == "":
		return s.Symbol
	}
	return s.Symbol + "_" + s.Timeframe
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

// Validate fails fast on timestamps that would break a backward as-of join.
func (s Series) Validate() error {
	return ValidateTimes(s.Name(), s.Times())
}

// ValidateTimes checks that ts is strictly increasing.
func ValidateTimes(name string, ts []time.Time) error {
	for i := 1; i < len(ts); i++ {
		switch {
		case ts[i].Equal(ts[i-1]):
			return fmt.Errorf("%s: row %d at %s: %w", name, i, ts[i].Format(time.RFC3339), ErrDuplicateTimestamp)
		case ts[i].Before(ts[i-1]):
			return fmt.Errorf("%s: row %d at %s: %w", name, i, ts[i].Format(time.RFC3339), ErrUnsorted)
		}
	}
	return nil
}

// HasField reports whether at least one bar carries name. Aligned driver
// columns are legitimately null on early rows, so presence is judged over
// the whole table rather than the first bar.
func (s Series) HasField(name string) bool {
	for _, b := range s.Bars {
		if b.Has(name) {
			return true
		}
	}
	return false
}

// Require returns a *MissingFieldError for the first name no bar carries.
func (s Series) Require(names ...string) error {
	for _, n := range names {
		if n == "" || n == FieldTime {
			continue
		}
		if !s.HasField(n) {
			return &MissingFieldError{Series: s.Name(), Field: n}
		}
	}
	return nil
}

// FieldNames lists every factor and label name present in the series, sorted.
func (s Series) FieldNames() []string {
	seen := map[string]bool{}
	for _, b := range s.Bars {
		for k := range b.Fields {
			seen[k] = true
		}
		for k := range b.Labels {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var forwardPrefixes = []string{"fwd_", "forward_", "future_", "next_"}

// IsForwardLooking reports whether a field name marks a value computed from
// bars after the one it is attached to (forward returns and the like).
// Aligned copies keep the marker after their prefix, e.g. "htf_fwd_ret".
func IsForwardLooking(name string) bool {
	n := strings.ToLower(name)
	for _, p := range forwardPrefixes {
		if strings.HasPrefix(n, p) || strings.Contains(n, "_"+p) {
			return true
		}
	}
	return false
}
