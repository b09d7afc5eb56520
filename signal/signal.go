// Package signal turns causally available bar fields into a long/flat
// position intent with edge-triggered entry and exit flags.
package signal

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/barsim/market"
)

type Side int8

const (
	Flat Side = 0
	Long Side = 1
)

func (s Side) String() string {
	if s == Long {
		return "long"
	}
	return "flat"
}

// Signal is the per-bar intent. At most one of Entry/Exit is set; both false
// means hold the current side.
type Signal struct {
	Side  Side
	Entry bool
	Exit  bool
}

var ErrNonCausalField = errors.New("non-causal field")

// Rule evaluates a boolean condition bar by bar. Stateful rules (moving
// averages) must only fold bars in the order they are given.
type Rule interface {
	Name() string
	Fields() []string
	Reset()
	Update(b market.Bar) bool
}

// Generator runs the Flat/Long state machine over a rule and an optional
// environment rule (e.g. a higher-timeframe trend state). While the
// environment is unfavorable no entry fires and an open side exits.
type Generator struct {
	rule Rule
	env  Rule
}

// NewGenerator rejects rules that read forward-looking fields.
func NewGenerator(rule Rule, env Rule) (*Generator, error) {
	if rule == nil {
		return nil, fmt.Errorf("signal: rule is required")
	}
	g := &Generator{rule: rule, env: env}
	for _, f := range g.Fields() {
		if market.IsForwardLooking(f) {
			return nil, fmt.Errorf("signal: %s reads %q: %w", rule.Name(), f, ErrNonCausalField)
		}
	}
	return g, nil
}

func (g *Generator) Name() string {
	if g.env == nil {
		return g.rule.Name()
	}
	return g.rule.Name() + "|env:" + g.env.Name()
}

// Fields lists every bar field the generator reads.
func (g *Generator) Fields() []string {
	out := append([]string{}, g.rule.Fields()...)
	if g.env != nil {
		out = append(out, g.env.Fields()...)
	}
	return out
}

// Generate emits one Signal per bar. The first bar only establishes the
// baseline condition; entry fires on a false-to-true transition.
func (g *Generator) Generate(s market.Series) ([]Signal, error) {
	if err := s.Require(g.Fields()...); err != nil {
		return nil, err
	}

	g.rule.Reset()
	if g.env != nil {
		g.env.Reset()
	}

	out := make([]Signal, len(s.Bars))
	side := Flat
	prev := false
	for i, b := range s.Bars {
		cond := g.rule.Update(b)
		favorable := true
		if g.env != nil {
			favorable = g.env.Update(b)
		}

		var sig Signal
		switch side {
		case Flat:
			if i > 0 && cond && !prev && favorable {
				sig.Entry = true
				side = Long
			}
		case Long:
			if !cond || !favorable {
				sig.Exit = true
				side = Flat
			}
		}
		sig.Side = side
		out[i] = sig
		prev = cond
	}
	return out, nil
}

// Count returns the number of entry and exit flags in sigs.
func Count(sigs []Signal) (entries, exits int) {
	for _, s := range sigs {
		if s.Entry {
			entries++
		}
		if s.Exit {
			exits++
		}
	}
	return entries, exits
}
