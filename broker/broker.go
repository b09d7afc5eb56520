// Package broker is the execution backend interface plus an in-memory paper
// implementation used to replay risk-managed decisions.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoPosition     = errors.New("no open position")
	ErrPositionExists = errors.New("position already open for symbol")
	ErrInvalidOrder   = errors.New("invalid order")
)

type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
	ClosePosition(ctx context.Context, req CloseRequest) (Fill, error)
	ListPositions(ctx context.Context) ([]Position, error)
	AccountInfo(ctx context.Context) (Account, error)
}

type Account struct {
	ID            string
	Currency      string
	Cash          float64
	Exposure      float64
	OpenPositions int
}

// OrderRequest opens a long of Notional at Price.
type OrderRequest struct {
	Symbol   string
	Notional float64
	Price    float64
	StopLoss *float64
	Time     time.Time
}

type CloseRequest struct {
	Symbol string
	Price  float64
	Reason string
	Time   time.Time
}

type Fill struct {
	OrderID    string
	Symbol     string
	Units      float64
	Price      float64
	Fee        float64
	RealizedPL float64
	Time       time.Time
}

type Position struct {
	ID         string
	Symbol     string
	Units      float64
	Notional   float64
	EntryPrice float64
	StopLoss   *float64
	OpenTime   time.Time
}
