package precision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"spotexecutor/src/model"
)

// ErrUnknownInstrument is returned when metadata is not cached and cannot be fetched.
var ErrUnknownInstrument = errors.New("unknown instrument")

// InstrumentSource fetches instrument metadata from the exchange.
type InstrumentSource interface {
	GetInstrument(ctx context.Context, symbol string) (*model.Instrument, error)
}

// Normalizer rounds prices and sizes down to exchange granularity. Metadata
// is fetched once per symbol and kept for the life of the process.
type Normalizer struct {
	src   InstrumentSource
	mu    sync.RWMutex
	cache map[string]model.Instrument
}

func NewNormalizer(src InstrumentSource) *Normalizer {
	return &Normalizer{
		src:   src,
		cache: make(map[string]model.Instrument),
	}
}

// Instrument returns cached metadata, fetching it on first use.
func (n *Normalizer) Instrument(ctx context.Context, symbol string) (model.Instrument, error) {
	n.mu.RLock()
	inst, ok := n.cache[symbol]
	n.mu.RUnlock()
	if ok {
		return inst, nil
	}

	if n.src == nil {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}

	fetched, err := n.src.GetInstrument(ctx, symbol)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "precision",
			"symbol":    symbol,
		}).WithError(err).Warn("instrument metadata fetch failed")
		return model.Instrument{}, fmt.Errorf("%w: %s: %v", ErrUnknownInstrument, symbol, err)
	}
	if fetched == nil || !fetched.TickSz.IsPositive() || !fetched.LotSz.IsPositive() {
		return model.Instrument{}, fmt.Errorf("%w: %s: invalid tick/lot", ErrUnknownInstrument, symbol)
	}

	n.mu.Lock()
	// keep the first value; metadata is immutable for the session
	if existing, ok := n.cache[symbol]; ok {
		n.mu.Unlock()
		return existing, nil
	}
	n.cache[symbol] = *fetched
	n.mu.Unlock()

	return *fetched, nil
}

// Put seeds the cache, mostly for tests and warm starts.
func (n *Normalizer) Put(inst model.Instrument) {
	n.mu.Lock()
	n.cache[inst.Symbol] = inst
	n.mu.Unlock()
}

// NormalizePrice rounds price down to the instrument tick size.
func (n *Normalizer) NormalizePrice(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	inst, err := n.Instrument(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return FloorToStep(price, inst.TickSz), nil
}

// NormalizeSize rounds size down to the instrument lot size.
func (n *Normalizer) NormalizeSize(ctx context.Context, symbol string, size decimal.Decimal) (decimal.Decimal, error) {
	inst, err := n.Instrument(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return FloorToStep(size, inst.LotSz), nil
}

// FloorToStep rounds v down to a multiple of step. A non-positive step returns v unchanged.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
