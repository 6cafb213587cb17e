package controller

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"spotexecutor/src/connectors"
	"spotexecutor/src/model"
	"spotexecutor/src/planner"
	"spotexecutor/src/risk"
	"spotexecutor/src/signal"
)

// Exchange is the subset of the exchange client the lifecycle relies on.
// connectors.Client implements it.
type Exchange interface {
	GetInstrument(ctx context.Context, symbol string) (*model.Instrument, error)
	GetCandles(ctx context.Context, symbol, bar string, limit int) (model.CandleSeries, error)
	GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBalance(ctx context.Context, ccy string) (decimal.Decimal, error)

	PlaceLimitBuy(ctx context.Context, symbol, clientID string, price, size decimal.Decimal) (string, error)
	PlaceMarketSell(ctx context.Context, symbol, clientID string, size decimal.Decimal) (string, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderStatus, error)
	FindOrderByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	PlaceOCO(ctx context.Context, symbol, clientID string, size, takeProfit, stopLoss decimal.Decimal) (string, error)
	GetAlgoOrder(ctx context.Context, symbol, algoID string) (*model.OrderStatus, error)
	FindAlgoByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error)
	CancelAlgo(ctx context.Context, symbol, algoID string) error
}

// Amender is implemented by gateways that can move the stop of a live OCO in place.
type Amender interface {
	SupportsAmend() bool
	AmendOCO(ctx context.Context, symbol, algoID string, stopLoss decimal.Decimal) error
}

var _ Exchange = (*connectors.Client)(nil)
var _ Amender = (*connectors.Client)(nil)

type StateStore interface {
	CreatePosition(ctx context.Context, p *model.Position, reason string) error
	CreateFromAlert(ctx context.Context, p *model.Position, alertID uint) error
	CreateGridCycle(ctx context.Context, cycle *model.GridCycle, legs []*model.Position) error
	SavePosition(ctx context.Context, p *model.Position, from model.PositionState, reason string) error
	Finalize(ctx context.Context, p *model.Position, from model.PositionState, trade *model.Trade, reason string) (*model.GridCycle, error)
	FindPosition(ctx context.Context, id string) (*model.Position, error)
	FindOpenBySymbol(ctx context.Context, symbol string) ([]model.Position, error)
}

type AlertStore interface {
	FindActive(ctx context.Context, symbol string) ([]model.Alert, error)
}

type ExceptionStore interface {
	Create(ctx context.Context, exception *model.Exception) error
}

// Deps are the collaborators of a Manager. Engine, Planner and Risk fall
// back to their defaults when nil.
type Deps struct {
	Exchange   Exchange
	Notifier   connectors.Notifier
	State      StateStore
	Alerts     AlertStore
	Exceptions ExceptionStore
	Engine     *signal.Engine
	Planner    *planner.Planner
	Risk       *risk.Calculator
	Now        func() time.Time
}
