package journal

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/rustyeddy/barsim/perf"
)

var orgFuncs = template.FuncMap{
	"null": func(v sql.NullFloat64, format string) string {
		if !v.Valid {
			return "n/a"
		}
		return fmt.Sprintf(format, v.Float64)
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"name": func(b perf.Breakdown) string { return perf.Options{By: b.Fields}.Name() },
}

type orgView struct {
	Run
	Breakdowns []perf.Breakdown
}

// FormatRunOrg renders a run and its breakdowns as an Org-mode entry.
func FormatRunOrg(r Run, bds []perf.Breakdown) (string, error) {
	t, err := template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, orgView{Run: r, Breakdowns: bds}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteOrg writes FormatRunOrg output to r.OrgPath.
func WriteOrg(r Run, bds []perf.Breakdown) error {
	s, err := FormatRunOrg(r, bds)
	if err != nil {
		return err
	}
	return os.WriteFile(r.OrgPath, []byte(s), 0o644)
}

const RunOrgTemplate = `
* BACKTEST: {{.Strategy}} {{.Symbol}} {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:POLICY:      {{.PolicyID}}
:TIMEFRAME:   {{.Timeframe}}
:SYMBOL:      {{.Symbol}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Summary.Start.Format "2006-01-02"}}
:END_DATE:    {{.Summary.End.Format "2006-01-02"}}
:START_EQ:    {{printf "%.2f" .Summary.InitialEquity}}
:END_EQ:      {{printf "%.2f" .Summary.FinalEquity}}
:NET_PL:      {{printf "%.2f" .Summary.TotalPnL}}
:RETURN_PCT:  {{printf "%.2f" .Summary.TotalReturnPct}}
:MAX_DD_PCT:  {{null .Summary.MaxDrawdownPct "%.2f"}}
:TRADES:      {{.Summary.NTrades}}
:WIN_RATE:    {{null .Summary.WinRatePct "%.2f"}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:          *{{printf "%.2f" .Summary.TotalPnL}}*
- Return:           *{{printf "%.2f" .Summary.TotalReturnPct}}%*
- Max Drawdown:     *{{null .Summary.MaxDrawdownPct "%.2f"}}%*
- Mean R:           *{{null .Summary.MeanR "%.3f"}}*
- Median R:         *{{null .Summary.MedianR "%.3f"}}*
- Sharpe (R):       *{{null .Summary.SharpeR "%.3f"}}*
{{- if .Blocked }}

** Blocked Entries
| Code | Count |
|------+-------|
{{- range $code, $n := .Blocked }}
| {{$code}} | {{$n}} |
{{- end }}
{{- end }}
{{- range .Breakdowns }}

** Breakdown: {{name .}} (min {{.MinSamples}})
| Group | N | Win % | Mean R | Median R | P5 R | P95 R | Total P/L |
|-------+---+-------+--------+----------+------+-------+-----------|
| ALL | {{.All.Count}} | {{null .All.WinRatePct "%.1f"}} | {{null .All.MeanR "%.3f"}} | {{null .All.MedianR "%.3f"}} | {{null .All.P5R "%.3f"}} | {{null .All.P95R "%.3f"}} | {{printf "%.2f" .All.TotalPnL}} |
{{- range .Groups }}
| {{.Label}} | {{.Stats.Count}} | {{null .Stats.WinRatePct "%.1f"}} | {{null .Stats.MeanR "%.3f"}} | {{null .Stats.MedianR "%.3f"}} | {{null .Stats.P5R "%.3f"}} | {{null .Stats.P95R "%.3f"}} | {{printf "%.2f" .Stats.TotalPnL}} |
{{- end }}
{{- end }}
`
