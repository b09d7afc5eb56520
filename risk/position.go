package risk

import "time"

// Position is the single open long. It exists only between an accepted
// entry and its exit.
type Position struct {
	EntryIndex     int
	EntryTime      time.Time
	EntryPrice     float64
	VolatilityUnit float64
	Notional       float64
	BarsHeld       int
	StopPrice      float64
	HasStop        bool
	Regime         Regime
}

// Units is the base quantity held.
func (p *Position) Units() float64 {
	return p.Notional / p.EntryPrice
}

// Exit reasons.
type ExitReason string

const (
	ExitSignal  ExitReason = "SIGNAL"
	ExitStop    ExitReason = "STOP"
	ExitTimeout ExitReason = "TIMEOUT"
	ExitRegime  ExitReason = "REGIME"
	ExitEnd     ExitReason = "END"
)

// Closed is a position together with how it ended.
type Closed struct {
	Position
	ExitIndex int
	ExitTime  time.Time
	ExitPrice float64
	Reason    ExitReason
	Settlement
}

// State is the risk state folded over the bars.
type State struct {
	Equity   float64
	Exposure float64
	DailyPnL float64
	Date     time.Time
	Halted   bool
	Position *Position
	highBars int
	started  bool
}
