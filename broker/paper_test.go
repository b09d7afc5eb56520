package broker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/risk"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPaper_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPaper(PaperConfig{InitialCash: 10000, Costs: risk.Costs{TransactionCostPct: 0.1}}, zerolog.Nop())

	f, err := p.SubmitOrder(ctx, OrderRequest{Symbol: "BTCUSD", Notional: 1000, Price: 100, Time: t0})
	require.NoError(t, err)
	assert.InDelta(t, 10, f.Units, 1e-12)
	assert.InDelta(t, 1, f.Fee, 1e-12)

	pos, err := p.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, f.OrderID, pos[0].ID)

	_, err = p.SubmitOrder(ctx, OrderRequest{Symbol: "BTCUSD", Notional: 1000, Price: 100})
	assert.ErrorIs(t, err, ErrPositionExists)

	c, err := p.ClosePosition(ctx, CloseRequest{Symbol: "BTCUSD", Price: 110, Reason: "SIGNAL", Time: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.InDelta(t, 98, c.RealizedPL, 1e-9)

	acct, err := p.AccountInfo(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10098, acct.Cash, 1e-9)
	assert.Zero(t, acct.OpenPositions)
	assert.Equal(t, "paper", acct.ID)

	_, err = p.ClosePosition(ctx, CloseRequest{Symbol: "BTCUSD", Price: 110})
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestPaper_RejectsInvalidOrders(t *testing.T) {
	t.Parallel()

	p := NewPaper(PaperConfig{InitialCash: 1}, zerolog.Nop())
	_, err := p.SubmitOrder(context.Background(), OrderRequest{Symbol: "X", Notional: 0, Price: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SubmitOrder(ctx, OrderRequest{Symbol: "X", Notional: 1, Price: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay_MatchesLedger(t *testing.T) {
	t.Parallel()

	costs := risk.Costs{TransactionCostPct: 0.05, SlippagePct: 0.05}
	open := &risk.Position{EntryIndex: 1, EntryTime: t0, EntryPrice: 100, Notional: 1000, StopPrice: 97, HasStop: true}
	st := risk.Settle(100, 95, 1000, 1, costs)
	closed := &risk.Closed{Position: *open, ExitIndex: 3, ExitTime: t0.Add(2 * time.Hour), ExitPrice: 95, Reason: risk.ExitStop, Settlement: st}

	ds := []risk.Decision{
		{Index: 0},
		{Index: 1, Opened: open},
		{Index: 2},
		{Index: 3, Closed: closed},
	}

	p := NewPaper(PaperConfig{InitialCash: 10000, Costs: costs}, zerolog.Nop())
	fills, err := Replay(context.Background(), p, "ETHUSD", ds)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.InDelta(t, st.Net, fills[1].RealizedPL, 1e-9)

	acct, err := p.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000+st.Net, acct.Cash, 1e-9)

	_, err = Replay(context.Background(), p, "ETHUSD", []risk.Decision{{Index: 9, Closed: closed}})
	assert.ErrorIs(t, err, ErrNoPosition)
}
