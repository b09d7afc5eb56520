package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV reads a bar table with a header row:
//
//	timestamp,open,high,low,close,volume[,extra...]
//
// "time" is accepted for the timestamp column. Extra columns whose non-empty
// cells all parse as numbers become Fields; anything else becomes Labels.
// Empty and NaN cells are left absent (null). The table must be sorted by
// timestamp with no duplicates.
func LoadCSV(path, symbol, timeframe string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()

	return ReadCSV(f, symbol, timeframe)
}

func ReadCSV(r io.Reader, symbol, timeframe string) (Series, error) {
	s := Series{Symbol: symbol, Timeframe: timeframe}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return s, fmt.Errorf("%s: %w", s.Name(), ErrEmptySeries)
	}
	if err != nil {
		return s, fmt.Errorf("%s: read header: %w", s.Name(), err)
	}

	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "time" {
			h = FieldTime
		}
		cols[h] = i
	}
	for _, req := range RequiredFields {
		if _, ok := cols[req]; !ok {
			return s, &MissingFieldError{Series: s.Name(), Field: req}
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return s, fmt.Errorf("%s: %w", s.Name(), err)
	}

	extras := extraColumns(header, cols)
	numeric := classify(rows, extras)

	s.Bars = make([]Bar, 0, len(rows))
	for n, row := range rows {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		line := n + 2
		b := Bar{
			Fields: map[string]float64{},
			Labels: map[string]string{},
		}

		b.Time, err = parseTime(cell(row, cols[FieldTime]))
		if err != nil {
			return s, fmt.Errorf("%s: line %d: %w", s.Name(), line, err)
		}

		ohlcv := []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
		for i, name := range RequiredFields[1:] {
			raw := cell(row, cols[name])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return s, fmt.Errorf("%s: line %d: bad %s %q: %w", s.Name(), line, name, raw, err)
			}
			*ohlcv[i] = v
		}

		for _, ex := range extras {
			raw := cell(row, ex.idx)
			if isNull(raw) {
				continue
			}
			if numeric[ex.name] {
				v, _ := strconv.ParseFloat(raw, 64)
				b.Fields[ex.name] = v
				continue
			}
			b.Labels[ex.name] = raw
		}

		s.Bars = append(s.Bars, b)
	}

	if len(s.Bars) == 0 {
		return s, fmt.Errorf("%s: %w", s.Name(), ErrEmptySeries)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

type column struct {
	name string
	idx  int
}

func extraColumns(header []string, cols map[string]int) []column {
	required := map[string]bool{}
	for _, r := range RequiredFields {
		required[r] = true
	}
	var out []column
	for i, h := range header {
		name := strings.TrimSpace(h)
		lower := strings.ToLower(name)
		if lower == "time" || required[lower] {
			continue
		}
		if cols[lower] != i {
			continue
		}
		out = append(out, column{name: name, idx: i})
	}
	return out
}

// classify marks a column numeric when every non-null cell parses as a float.
func classify(rows [][]string, extras []column) map[string]bool {
	out := make(map[string]bool, len(extras))
	for _, ex := range extras {
		numeric, seen := true, false
		for _, row := range rows {
			raw := cell(row, ex.idx)
			if isNull(raw) {
				continue
			}
			seen = true
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsInf(v, 0) {
				numeric = false
				break
			}
		}
		out[ex.name] = numeric && seen
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isNull(raw string) bool {
	switch strings.ToLower(raw) {
	case "", "nan", "null", "none", "na":
		return true
	}
	return false
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
}
