package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/signal"
)

var (
	ErrPositionAlreadyOpen = errors.New("position already open")
	ErrConflictingSignal   = errors.New("entry and exit on the same bar")
	ErrBadEntryPrice       = errors.New("entry price must be positive")
	ErrSignalLength        = errors.New("signal count does not match bar count")
)

// Decision is the risk-managed outcome of one bar.
type Decision struct {
	Index   int
	Time    time.Time
	Side    signal.Side
	Opened  *Position
	Closed  *Closed
	Final   *Closed
	Blocked []Violation
	Halted  bool
	Equity  float64
}

// Manager owns the position lifecycle. Step must be called once per bar in
// time order; all state lives in the Manager and is reset by Reset.
type Manager struct {
	cfg    Config
	policy RegimePolicy
	log    zerolog.Logger
	st     State
}

func NewManager(cfg Config, policy RegimePolicy, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, policy: policy, log: log.With().Str("component", "risk").Logger()}
	m.Reset()
	return m, nil
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Reset() {
	m.st = State{Equity: m.cfg.InitialEquity}
}

// State returns a snapshot of the risk state.
func (m *Manager) State() State {
	st := m.st
	if st.Position != nil {
		p := *st.Position
		st.Position = &p
	}
	return st
}

// Apply folds Step over the whole series.
func (m *Manager) Apply(s market.Series, sigs []signal.Signal) ([]Decision, error) {
	if len(sigs) != len(s.Bars) {
		return nil, fmt.Errorf("risk: %d signals for %d bars: %w", len(sigs), len(s.Bars), ErrSignalLength)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Require(m.cfg.VolatilityField); err != nil {
		return nil, err
	}
	if m.policy.Enabled {
		if err := s.Require(m.cfg.RegimeField); err != nil {
			return nil, err
		}
	}

	m.Reset()
	out := make([]Decision, len(s.Bars))
	for i, b := range s.Bars {
		d, err := m.Step(i, b, sigs[i])
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// Step processes one bar: stop, timeout and regime exits first, then daily
// rollover and halt, then entry, then signal exit.
func (m *Manager) Step(i int, b market.Bar, sig signal.Signal) (Decision, error) {
	d := Decision{Index: i, Time: b.Time}
	if sig.Entry && sig.Exit {
		return d, fmt.Errorf("risk: bar %d: %w", i, ErrConflictingSignal)
	}
	if !m.st.started {
		m.st.Date = day(b.Time)
		m.st.started = true
	}

	if p := m.st.Position; p != nil && p.HasStop && b.Close <= p.StopPrice {
		d.Closed = m.close(i, b, ExitStop)
	}
	if p := m.st.Position; p != nil && m.cfg.MaxHoldingBars > 0 && p.BarsHeld >= m.cfg.MaxHoldingBars {
		d.Closed = m.close(i, b, ExitTimeout)
	}
	if p := m.st.Position; p != nil && m.policy.Enabled && m.policy.DynamicExit.Enabled {
		if r, err := m.regime(b); err == nil && r == RegimeHigh {
			m.st.highBars++
		} else {
			m.st.highBars = 0
		}
		if m.st.highBars >= m.policy.DynamicExit.PersistenceBars {
			d.Closed = m.close(i, b, ExitRegime)
		}
	}

	if today := day(b.Time); !today.Equal(m.st.Date) {
		m.st.Date = today
		m.st.DailyPnL = 0
		m.st.Halted = false
	}

	if !m.st.Halted && m.cfg.DailyLossLimitPct > 0 && m.st.DailyPnL <= -m.dailyLimit() {
		m.st.Halted = true
		m.log.Info().
			Time("time", b.Time).
			Float64("daily_pnl", m.st.DailyPnL).
			Float64("limit", m.dailyLimit()).
			Msg("daily loss halt")
	}
	d.Halted = m.st.Halted

	if sig.Entry {
		if m.st.Position != nil {
			return d, fmt.Errorf("risk: bar %d at %s: %w", i, b.Time.Format(time.RFC3339), ErrPositionAlreadyOpen)
		}
		if err := m.enter(i, b, &d); err != nil {
			return d, err
		}
	}

	if sig.Exit && m.st.Position != nil && d.Closed == nil {
		d.Closed = m.close(i, b, ExitSignal)
	}

	if p := m.st.Position; p != nil && d.Opened == nil && d.Closed == nil {
		p.BarsHeld++
	}

	if m.st.Position != nil {
		d.Side = signal.Long
	}
	d.Equity = m.st.Equity
	return d, nil
}

// CloseAtEnd settles a position still open after the last bar at that
// bar's close with reason END and records it as the final decision's Final.
// It returns nil when flat.
func (m *Manager) CloseAtEnd(s market.Series, ds []Decision) *Closed {
	if m.st.Position == nil || len(ds) == 0 || len(ds) != len(s.Bars) {
		return nil
	}
	last := len(ds) - 1
	c := m.close(last, s.Bars[last], ExitEnd)
	ds[last].Final = c
	ds[last].Side = signal.Flat
	ds[last].Equity = m.st.Equity
	return c
}

func (m *Manager) dailyLimit() float64 {
	return m.st.Equity * m.cfg.DailyLossLimitPct / 100
}

func (m *Manager) enter(i int, b market.Bar, d *Decision) error {
	var g gate
	var notional float64

	regime, rerr := m.regime(b)
	action := m.policy.Action(regime)

	switch {
	case m.st.Halted:
		g.add(CodeDailyLossHalt, "daily pnl %.2f at or below -%.2f", m.st.DailyPnL, m.dailyLimit())
	case m.policy.Enabled && rerr != nil:
		g.add(CodeRegimeUnknown, "%v", rerr)
	case !action.AllowEntry || action.SizeMultiplier <= 0:
		g.add(CodeRegimeBlocked, "policy %s blocks entries in %s regime", m.policy.ID, regime)
	default:
		capacity := ExposureCapacity(m.st.Equity, m.cfg.MaxPortfolioExposurePct, m.st.Exposure)
		notional = PositionSize(m.cfg.BaseNotional, action.SizeMultiplier, capacity)
		if notional <= 0 {
			g.add(CodeNoExposureCapacity, "exposure %.2f leaves capacity %.2f", m.st.Exposure, capacity)
		}
	}

	if !g.allowed() {
		d.Blocked = g.violations
		m.log.Debug().Int("bar", i).Str("code", g.violations[0].Code).Msg("entry blocked")
		return nil
	}
	if b.Close <= 0 || math.IsNaN(b.Close) {
		return fmt.Errorf("risk: bar %d: %v: %w", i, b.Close, ErrBadEntryPrice)
	}

	vol, _ := b.Value(m.cfg.VolatilityField)
	if math.IsNaN(vol) {
		vol = 0
	}
	p := &Position{
		EntryIndex:     i,
		EntryTime:      b.Time,
		EntryPrice:     b.Close,
		VolatilityUnit: vol,
		Notional:       notional,
		Regime:         regime,
	}
	p.StopPrice, p.HasStop = ATRStop(b.Close, vol, m.cfg.ATRStopMultiple)

	m.st.Position = p
	m.st.Exposure += notional
	m.st.highBars = 0

	opened := *p
	d.Opened = &opened
	m.log.Debug().
		Int("bar", i).
		Float64("price", p.EntryPrice).
		Float64("notional", notional).
		Float64("stop", p.StopPrice).
		Str("regime", string(regime)).
		Msg("entry")
	return nil
}

func (m *Manager) close(i int, b market.Bar, reason ExitReason) *Closed {
	p := m.st.Position
	s := Settle(p.EntryPrice, b.Close, p.Notional, p.VolatilityUnit, m.cfg.Costs)

	m.st.Equity += s.Net
	m.st.DailyPnL += s.Net
	m.st.Exposure -= p.Notional
	if math.Abs(m.st.Exposure) < 1e-9 {
		m.st.Exposure = 0
	}
	m.st.Position = nil
	m.st.highBars = 0

	m.log.Debug().
		Int("bar", i).
		Str("reason", string(reason)).
		Float64("price", b.Close).
		Float64("net", s.Net).
		Msg("exit")

	return &Closed{
		Position:   *p,
		ExitIndex:  i,
		ExitTime:   b.Time,
		ExitPrice:  b.Close,
		Reason:     reason,
		Settlement: s,
	}
}

// regime reads the bar's regime from its label or numeric code.
func (m *Manager) regime(b market.Bar) (Regime, error) {
	if m.cfg.RegimeField == "" {
		return "", ErrUnknownRegime
	}
	if l, ok := b.Label(m.cfg.RegimeField); ok {
		return ParseRegime(l)
	}
	if v, ok := b.Fields[m.cfg.RegimeField]; ok {
		return ParseRegime(fmt.Sprintf("%g", v))
	}
	return "", fmt.Errorf("%w: %s is null", ErrUnknownRegime, m.cfg.RegimeField)
}

func day(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
