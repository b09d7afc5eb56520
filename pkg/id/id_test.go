package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Monotonic(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func mustTrade(t *testing.T, at time.Time, seq int) string {
	t.Helper()
	id, err := Trade(at, seq)
	require.NoError(t, err)
	return id
}

func TestTrade_Deterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, mustTrade(t, at, 1), mustTrade(t, at, 1))
	assert.NotEqual(t, mustTrade(t, at, 1), mustTrade(t, at, 2))
	assert.Less(t, mustTrade(t, at, 9), mustTrade(t, at.Add(time.Hour), 0))

	u, err := ulid.Parse(mustTrade(t, at, 7))
	require.NoError(t, err)
	assert.Equal(t, at, ulid.Time(u.Time()).UTC())
}

func TestTrade_BeforeEpoch(t *testing.T) {
	t.Parallel()

	_, err := Trade(time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ulid.ErrBigTime)

	assert.NotPanics(t, func() {
		_, _ = Trade(time.Unix(-86400*365, 0), 3)
	})
	assert.Equal(t, "00000000000000000000000001", mustTrade(t, time.Unix(0, 0), 1))
}
