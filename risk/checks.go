package risk

import "fmt"

// Blocked-entry codes.
const (
	CodeDailyLossHalt      = "DAILY_LOSS_HALT"
	CodeRegimeBlocked      = "REGIME_BLOCKED"
	CodeRegimeUnknown      = "REGIME_UNKNOWN"
	CodeNoExposureCapacity = "NO_EXPOSURE_CAPACITY"
)

// Violation explains why an entry intent was not turned into a position.
type Violation struct {
	Code string
	Msg  string
}

func (v Violation) String() string {
	return v.Code + ": " + v.Msg
}

type gate struct {
	violations []Violation
}

func (g *gate) add(code, format string, args ...any) {
	g.violations = append(g.violations, Violation{Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (g *gate) allowed() bool { return len(g.violations) == 0 }
