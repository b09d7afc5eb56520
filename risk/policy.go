package risk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Regime is the closed set of risk regimes carried on each bar.
type Regime string

const (
	RegimeLow    Regime = "low"
	RegimeMedium Regime = "medium"
	RegimeHigh   Regime = "high"
)

var Regimes = []Regime{RegimeLow, RegimeMedium, RegimeHigh}

var ErrUnknownRegime = errors.New("unknown regime")

// ParseRegime accepts the labels low/medium/high (any case) or the numeric
// codes 0/1/2.
func ParseRegime(s string) (Regime, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "low", "0":
		return RegimeLow, nil
	case "medium", "med", "1":
		return RegimeMedium, nil
	case "high", "2":
		return RegimeHigh, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int(f)) {
		if code := strconv.Itoa(int(f)); code != v {
			return ParseRegime(code)
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownRegime, s)
}

// RegimeAction is what the policy does with an entry in a regime.
type RegimeAction struct {
	AllowEntry     bool    `yaml:"allow_entry" json:"allow_entry"`
	SizeMultiplier float64 `yaml:"size_multiplier" json:"size_multiplier" validate:"gte=0"`
}

// DynamicExit closes a position once the regime has been high for
// PersistenceBars consecutive held bars.
type DynamicExit struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	PersistenceBars int  `yaml:"persistence_threshold_bars" json:"persistence_threshold_bars" validate:"gte=0"`
}

// RegimePolicy maps every regime to an action. A disabled policy lets every
// entry through at full size.
type RegimePolicy struct {
	ID          string                  `yaml:"id" json:"id"`
	Enabled     bool                    `yaml:"enabled" json:"enabled"`
	Actions     map[Regime]RegimeAction `yaml:"actions" json:"actions" validate:"dive"`
	DynamicExit DynamicExit             `yaml:"dynamic_exit" json:"dynamic_exit"`
}

// PassThrough returns a disabled policy.
func PassThrough() RegimePolicy {
	return RegimePolicy{ID: "pass_through"}
}

// DefaultPolicy blocks entries in the high regime and halves size in medium.
func DefaultPolicy() RegimePolicy {
	return RegimePolicy{
		ID:      "block_high",
		Enabled: true,
		Actions: map[Regime]RegimeAction{
			RegimeLow:    {AllowEntry: true, SizeMultiplier: 1},
			RegimeMedium: {AllowEntry: true, SizeMultiplier: 0.5},
			RegimeHigh:   {AllowEntry: false, SizeMultiplier: 0},
		},
		DynamicExit: DynamicExit{Enabled: true, PersistenceBars: 3},
	}
}

// Validate requires an action for every regime when the policy is enabled.
func (p RegimePolicy) Validate() error {
	if !p.Enabled {
		return nil
	}
	for r := range p.Actions {
		switch r {
		case RegimeLow, RegimeMedium, RegimeHigh:
		default:
			return fmt.Errorf("regime policy %q: %w %q", p.ID, ErrUnknownRegime, r)
		}
	}
	for _, r := range Regimes {
		a, ok := p.Actions[r]
		if !ok {
			return fmt.Errorf("regime policy %q: no action for regime %q", p.ID, r)
		}
		if a.SizeMultiplier < 0 {
			return fmt.Errorf("regime policy %q: negative size multiplier for %q", p.ID, r)
		}
	}
	if p.DynamicExit.Enabled && p.DynamicExit.PersistenceBars <= 0 {
		return fmt.Errorf("regime policy %q: dynamic exit needs persistence_threshold_bars > 0", p.ID)
	}
	return validate.Struct(p)
}

// Action returns the action for r. Only call on a validated policy.
func (p RegimePolicy) Action(r Regime) RegimeAction {
	if !p.Enabled {
		return RegimeAction{AllowEntry: true, SizeMultiplier: 1}
	}
	return p.Actions[r]
}
