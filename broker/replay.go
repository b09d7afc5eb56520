package broker

import (
	"context"
	"fmt"

	"github.com/rustyeddy/barsim/risk"
)

// Replay mirrors risk-managed decisions onto b in bar order: closes first,
// then the bar's entry. It returns the fills it produced.
func Replay(ctx context.Context, b Broker, symbol string, ds []risk.Decision) ([]Fill, error) {
	var fills []Fill
	for _, d := range ds {
		if err := ctx.Err(); err != nil {
			return fills, err
		}
		if d.Closed != nil {
			f, err := closeOn(ctx, b, symbol, d.Closed)
			if err != nil {
				return fills, err
			}
			fills = append(fills, f)
		}
		if d.Opened != nil {
			req := OrderRequest{
				Symbol:   symbol,
				Notional: d.Opened.Notional,
				Price:    d.Opened.EntryPrice,
				Time:     d.Opened.EntryTime,
			}
			if d.Opened.HasStop {
				stop := d.Opened.StopPrice
				req.StopLoss = &stop
			}
			f, err := b.SubmitOrder(ctx, req)
			if err != nil {
				return fills, fmt.Errorf("replay bar %d: %w", d.Index, err)
			}
			fills = append(fills, f)
		}
		if d.Final != nil {
			f, err := closeOn(ctx, b, symbol, d.Final)
			if err != nil {
				return fills, err
			}
			fills = append(fills, f)
		}
	}
	return fills, nil
}

func closeOn(ctx context.Context, b Broker, symbol string, c *risk.Closed) (Fill, error) {
	f, err := b.ClosePosition(ctx, CloseRequest{
		Symbol: symbol,
		Price:  c.ExitPrice,
		Reason: string(c.Reason),
		Time:   c.ExitTime,
	})
	if err != nil {
		return Fill{}, fmt.Errorf("replay bar %d: %w", c.ExitIndex, err)
	}
	return f, nil
}
