package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"spotexecutor/src/connectors"
	"spotexecutor/src/model"
)

type fakeAlgo struct {
	status model.OrderStatus
	size   decimal.Decimal
	tp     decimal.Decimal
	sl     decimal.Decimal
}

// fakeExchange is a scripted in-memory exchange. Orders stay pending until a
// test fills or cancels them.
type fakeExchange struct {
	mu sync.Mutex

	inst    model.Instrument
	candles model.CandleSeries
	last    decimal.Decimal
	balance decimal.Decimal
	amend   bool

	orders       map[string]*model.OrderStatus
	orderPrice   map[string]decimal.Decimal
	algos        map[string]*fakeAlgo
	clientOrders map[string]string
	clientAlgos  map[string]string
	nextID       int

	// queued failures, consumed one per call
	buyErrs    []error
	ocoErrs    []error
	cancelErrs []error
	sellErrs   []error
	// when set, a failing call still creates the order
	acceptOnError bool

	buys, ocos, amends, algoCancels, sells int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		inst: model.Instrument{
			Symbol: "ETH-USDT",
			TickSz: decimal.RequireFromString("0.01"),
			LotSz:  decimal.RequireFromString("0.0001"),
			MinSz:  decimal.RequireFromString("0.001"),
		},
		candles:      flatCandles(120, decimal.NewFromInt(3500), decimal.NewFromInt(15)),
		last:         decimal.NewFromInt(3495),
		balance:      decimal.NewFromInt(10000),
		orders:       map[string]*model.OrderStatus{},
		orderPrice:   map[string]decimal.Decimal{},
		algos:        map[string]*fakeAlgo{},
		clientOrders: map[string]string{},
		clientAlgos:  map[string]string{},
	}
}

// flatCandles returns bars with a constant close and a constant range of
// 2×half, which gives an ATR of 2×half.
func flatCandles(n int, price, half decimal.Decimal) model.CandleSeries {
	out := make(model.CandleSeries, n)
	for i := range out {
		out[i] = model.Candle{
			Open:   price,
			High:   price.Add(half),
			Low:    price.Sub(half),
			Close:  price,
			Volume: decimal.NewFromInt(10),
			Symbol: "ETH-USDT",
		}
	}
	return out
}

func (f *fakeExchange) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeExchange) GetInstrument(ctx context.Context, symbol string) (*model.Instrument, error) {
	inst := f.inst
	inst.Symbol = symbol
	return &inst, nil
}

func (f *fakeExchange) GetCandles(ctx context.Context, symbol, bar string, limit int) (model.CandleSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(model.CandleSeries(nil), f.candles...), nil
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeExchange) PlaceLimitBuy(ctx context.Context, symbol, clientID string, price, size decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := pop(&f.buyErrs)
	if err != nil && !f.acceptOnError {
		return "", err
	}
	f.buys++
	id := f.id("ord")
	f.orders[id] = &model.OrderStatus{OrderID: id, ClientID: clientID, State: model.OrderStatePending}
	f.orderPrice[id] = price
	f.clientOrders[clientID] = id
	return id, err
}

func (f *fakeExchange) PlaceMarketSell(ctx context.Context, symbol, clientID string, size decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.sellErrs); err != nil {
		return "", err
	}
	f.sells++
	id := f.id("sell")
	f.orders[id] = &model.OrderStatus{
		OrderID:    id,
		ClientID:   clientID,
		State:      model.OrderStateFilled,
		FilledSize: size,
		AvgPrice:   f.last,
	}
	return id, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, connectors.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeExchange) FindOrderByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error) {
	f.mu.Lock()
	id, ok := f.clientOrders[clientID]
	f.mu.Unlock()
	if !ok {
		return nil, connectors.ErrNotFound
	}
	return f.GetOrder(ctx, symbol, id)
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return connectors.ErrNotFound
	}
	if o.Done() {
		return connectors.ErrNotCancellable
	}
	o.State = model.OrderStateCancelled
	return nil
}

func (f *fakeExchange) PlaceOCO(ctx context.Context, symbol, clientID string, size, takeProfit, stopLoss decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := pop(&f.ocoErrs)
	if err != nil && !f.acceptOnError {
		return "", err
	}
	f.ocos++
	id := f.id("algo")
	f.algos[id] = &fakeAlgo{
		status: model.OrderStatus{OrderID: id, ClientID: clientID, State: model.OrderStatePending},
		size:   size,
		tp:     takeProfit,
		sl:     stopLoss,
	}
	f.clientAlgos[clientID] = id
	return id, err
}

func (f *fakeExchange) GetAlgoOrder(ctx context.Context, symbol, algoID string) (*model.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.algos[algoID]
	if !ok {
		return nil, connectors.ErrNotFound
	}
	cp := a.status
	return &cp, nil
}

func (f *fakeExchange) FindAlgoByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error) {
	f.mu.Lock()
	id, ok := f.clientAlgos[clientID]
	f.mu.Unlock()
	if !ok {
		return nil, connectors.ErrNotFound
	}
	return f.GetAlgoOrder(ctx, symbol, id)
}

func (f *fakeExchange) CancelAlgo(ctx context.Context, symbol, algoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.cancelErrs); err != nil {
		return err
	}
	a, ok := f.algos[algoID]
	if !ok {
		return connectors.ErrNotFound
	}
	if a.status.Done() {
		return connectors.ErrNotCancellable
	}
	f.algoCancels++
	a.status.State = model.OrderStateCancelled
	return nil
}

func (f *fakeExchange) SupportsAmend() bool { return f.amend }

func (f *fakeExchange) AmendOCO(ctx context.Context, symbol, algoID string, stopLoss decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.algos[algoID]
	if !ok {
		return connectors.ErrNotFound
	}
	f.amends++
	a.sl = stopLoss
	return nil
}

// ---------------------------------------------------
// scripting helpers
// ---------------------------------------------------

func (f *fakeExchange) fillOrder(orderID string, size decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.State = model.OrderStateFilled
	o.FilledSize = size
	o.AvgPrice = f.orderPrice[orderID]
}

func (f *fakeExchange) cancelOrderExternally(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID].State = model.OrderStateCancelled
}

func (f *fakeExchange) triggerAlgo(algoID string, leg model.ExitLeg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.algos[algoID]
	a.status.State = model.OrderStateFilled
	a.status.Exit = leg
	a.status.FilledSize = a.size
	if leg == model.ExitLegTakeProfit {
		a.status.AvgPrice = a.tp
	} else {
		a.status.AvgPrice = a.sl
	}
}

func (f *fakeExchange) liveAlgos() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.algos {
		if a.status.State == model.OrderStatePending {
			n++
		}
	}
	return n
}

func (f *fakeExchange) setLast(v decimal.Decimal) {
	f.mu.Lock()
	f.last = v
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) SendText(ctx context.Context, text string) error {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, t := range n.texts {
		if strings.Contains(t, substr) {
			c++
		}
	}
	return c
}
