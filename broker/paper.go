package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/pkg/id"
	"github.com/rustyeddy/barsim/risk"
)

var hundred = decimal.NewFromInt(100)

type PaperConfig struct {
	AccountID   string
	Currency    string
	InitialCash float64
	Costs       risk.Costs
}

type paperPosition struct {
	Position
	units    decimal.Decimal
	notional decimal.Decimal
	entry    decimal.Decimal
}

// Paper tracks cash and positions in memory and logs every fill. Fees are
// charged per side on the entry notional, matching the backtest cost model.
type Paper struct {
	mu        sync.Mutex
	cfg       PaperConfig
	cash      decimal.Decimal
	feeRate   decimal.Decimal
	positions map[string]*paperPosition
	log       zerolog.Logger
}

func NewPaper(cfg PaperConfig, log zerolog.Logger) *Paper {
	if cfg.AccountID == "" {
		cfg.AccountID = "paper"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	rate := decimal.NewFromFloat(cfg.Costs.TransactionCostPct).
		Add(decimal.NewFromFloat(cfg.Costs.SlippagePct)).
		Div(hundred)
	return &Paper{
		cfg:       cfg,
		cash:      decimal.NewFromFloat(cfg.InitialCash),
		feeRate:   rate,
		positions: map[string]*paperPosition{},
		log:       log.With().Str("component", "paper").Str("account", cfg.AccountID).Logger(),
	}
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if req.Symbol == "" || req.Notional <= 0 || req.Price <= 0 {
		return Fill{}, fmt.Errorf("submit order %+v: %w", req, ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.positions[req.Symbol]; ok {
		return Fill{}, fmt.Errorf("submit order: %w: %q", ErrPositionExists, req.Symbol)
	}

	notional := decimal.NewFromFloat(req.Notional)
	price := decimal.NewFromFloat(req.Price)
	units := notional.Div(price)
	fee := notional.Mul(p.feeRate)
	p.cash = p.cash.Sub(fee)

	pos := &paperPosition{
		Position: Position{
			ID:         id.New(),
			Symbol:     req.Symbol,
			Units:      units.InexactFloat64(),
			Notional:   req.Notional,
			EntryPrice: req.Price,
			StopLoss:   req.StopLoss,
			OpenTime:   req.Time,
		},
		units:    units,
		notional: notional,
		entry:    price,
	}
	p.positions[req.Symbol] = pos

	p.log.Info().
		Str("symbol", req.Symbol).
		Str("order_id", pos.ID).
		Float64("price", req.Price).
		Float64("notional", req.Notional).
		Time("time", req.Time).
		Msg("paper buy")

	return Fill{
		OrderID: pos.ID,
		Symbol:  req.Symbol,
		Units:   pos.Units,
		Price:   req.Price,
		Fee:     fee.InexactFloat64(),
		Time:    req.Time,
	}, nil
}

func (p *Paper) ClosePosition(ctx context.Context, req CloseRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if req.Price <= 0 {
		return Fill{}, fmt.Errorf("close %q at %v: %w", req.Symbol, req.Price, ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[req.Symbol]
	if !ok {
		return Fill{}, fmt.Errorf("close position: %w: %q", ErrNoPosition, req.Symbol)
	}

	exit := decimal.NewFromFloat(req.Price)
	gross := pos.units.Mul(exit.Sub(pos.entry))
	fee := pos.notional.Mul(p.feeRate)
	// Realized P/L is the round trip, entry fee included.
	realized := gross.Sub(fee).Sub(fee)
	p.cash = p.cash.Add(gross).Sub(fee)
	delete(p.positions, req.Symbol)

	p.log.Info().
		Str("symbol", req.Symbol).
		Str("order_id", pos.ID).
		Str("reason", req.Reason).
		Float64("price", req.Price).
		Float64("realized_pl", realized.InexactFloat64()).
		Time("time", req.Time).
		Msg("paper sell")

	return Fill{
		OrderID:    pos.ID,
		Symbol:     req.Symbol,
		Units:      -pos.Units,
		Price:      req.Price,
		Fee:        fee.InexactFloat64(),
		RealizedPL: realized.InexactFloat64(),
		Time:       req.Time,
	}, nil
}

func (p *Paper) ListPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// AccountInfo reports realized cash; open positions are not marked.
func (p *Paper) AccountInfo(ctx context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exposure := decimal.Zero
	for _, pos := range p.positions {
		exposure = exposure.Add(pos.notional)
	}
	return Account{
		ID:            p.cfg.AccountID,
		Currency:      p.cfg.Currency,
		Cash:          p.cash.InexactFloat64(),
		Exposure:      exposure.InexactFloat64(),
		OpenPositions: len(p.positions),
	}, nil
}
