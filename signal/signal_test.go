package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/market"
)

func closes(vals ...float64) market.Series {
	s := market.Series{Symbol: "TEST", Timeframe: "1h"}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		s.Bars = append(s.Bars, market.Bar{
			Time: t0.Add(time.Duration(i) * time.Hour), Open: v, High: v, Low: v, Close: v,
		})
	}
	return s
}

func withField(s market.Series, name string, vals ...float64) market.Series {
	for i := range s.Bars {
		s.Bars[i] = s.Bars[i].Clone()
		if i < len(vals) {
			s.Bars[i].Fields[name] = vals[i]
		}
	}
	return s
}

func TestGenerate_EntryAndExitEdges(t *testing.T) {
	t.Parallel()

	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = 100
		if i >= 30 && i < 70 {
			vals[i] = 110
		}
	}
	g, err := NewGenerator(&ThresholdRule{Field: market.FieldClose, Above: 105}, nil)
	require.NoError(t, err)

	sigs, err := g.Generate(closes(vals...))
	require.NoError(t, err)
	require.Len(t, sigs, 100)

	for i, s := range sigs {
		assert.Equal(t, i == 30, s.Entry, "entry at bar %d", i)
		assert.Equal(t, i == 70, s.Exit, "exit at bar %d", i)
		assert.False(t, s.Entry && s.Exit)
		if i >= 30 && i < 70 {
			assert.Equal(t, Long, s.Side, "bar %d", i)
		} else {
			assert.Equal(t, Flat, s.Side, "bar %d", i)
		}
	}
}

func TestGenerate_NoEntryWhenTrueAtStart(t *testing.T) {
	t.Parallel()

	s := withField(closes(1, 1, 1, 1, 1, 1), "htf_ladder_state", 1, 1, 0, 1, 1, -1)
	g, err := NewGenerator(&LadderTrendRule{Field: "htf_ladder_state", Up: 1}, nil)
	require.NoError(t, err)

	sigs, err := g.Generate(s)
	require.NoError(t, err)

	assert.False(t, sigs[0].Entry)
	assert.False(t, sigs[1].Entry, "already up at start is not a transition")
	assert.True(t, sigs[3].Entry)
	assert.True(t, sigs[5].Exit)

	entries, exits := Count(sigs)
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, exits)
}

func TestGenerate_NullFieldIsFalse(t *testing.T) {
	t.Parallel()

	s := closes(1, 1, 1, 1)
	s.Bars[2] = s.Bars[2].Clone()
	s.Bars[2].Fields["htf_ladder_state"] = 1

	g, err := NewGenerator(&LadderTrendRule{Field: "htf_ladder_state", Up: 1}, nil)
	require.NoError(t, err)
	sigs, err := g.Generate(s)
	require.NoError(t, err)

	assert.True(t, sigs[2].Entry)
	assert.True(t, sigs[3].Exit)
}

func TestGenerate_EnvironmentFilter(t *testing.T) {
	t.Parallel()

	s := closes(1, 2, 2, 1, 2, 2, 2)
	s = withField(s, "trend", 1, 0, 1, 1, 1, 1, 0)

	g, err := NewGenerator(
		&ThresholdRule{Field: market.FieldClose, Above: 1.5},
		&ThresholdRule{Field: "trend", Above: 0.5},
	)
	require.NoError(t, err)

	sigs, err := g.Generate(s)
	require.NoError(t, err)

	assert.False(t, sigs[1].Entry, "entry suppressed while environment unfavorable")
	assert.False(t, sigs[2].Entry, "edge already consumed")
	assert.True(t, sigs[4].Entry)
	assert.True(t, sigs[6].Exit, "exit when environment flips away")
}

func TestNewGenerator_RejectsForwardFields(t *testing.T) {
	t.Parallel()

	for _, f := range []string{"fwd_ret_5", "htf_future_close", "next_close"} {
		_, err := NewGenerator(&ThresholdRule{Field: f}, nil)
		assert.ErrorIs(t, err, ErrNonCausalField, f)
	}

	_, err := NewGenerator(&ThresholdRule{Field: "close"}, &ThresholdRule{Field: "forward_return"})
	assert.ErrorIs(t, err, ErrNonCausalField)
}

func TestGenerate_MissingField(t *testing.T) {
	t.Parallel()

	g, err := NewGenerator(&ThresholdRule{Field: "ladder_state"}, nil)
	require.NoError(t, err)

	_, err = g.Generate(closes(1, 2, 3))
	var mf *market.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "ladder_state", mf.Field)
}

func TestEMACrossRule(t *testing.T) {
	t.Parallel()

	_, err := NewEMACrossRule(5, 5)
	assert.Error(t, err)

	r, err := NewEMACrossRule(2, 4)
	require.NoError(t, err)

	vals := []float64{10, 10, 10, 10, 10, 20, 30, 40, 10, 5, 5, 5}
	g, err := NewGenerator(r, nil)
	require.NoError(t, err)

	sigs, err := g.Generate(closes(vals...))
	require.NoError(t, err)

	entries, exits := Count(sigs)
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, exits)
	assert.True(t, sigs[5].Entry)

	// A rerun over the same bars resets state and reproduces the signals.
	again, err := g.Generate(closes(vals...))
	require.NoError(t, err)
	assert.Equal(t, sigs, again)
}
