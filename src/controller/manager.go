package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/connectors"
	"spotexecutor/src/model"
	"spotexecutor/src/planner"
	"spotexecutor/src/precision"
	"spotexecutor/src/risk"
	"spotexecutor/src/signal"
)

const serviceName = "spot_executor"

// SymbolLocks serializes work on one symbol across the evaluation pass and
// operator commands.
type SymbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the symbol is free and returns the matching unlock.
func (l *SymbolLocks) Lock(symbol string) func() {
	l.mu.Lock()
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// SymbolReport summarizes one evaluation of a symbol.
type SymbolReport struct {
	Symbol      string
	Regime      signal.Regime
	Opened      []string
	Closed      []string
	Cancelled   []string
	Unprotected []string
}

// market is the data fetched once per symbol and pass. A nil market means the
// exchange gave no information this cycle.
type market struct {
	series model.CandleSeries
	eval   signal.Evaluation
	last   decimal.Decimal
}

// Manager owns the position lifecycle: it plans entries, submits them,
// protects fills and closes positions, persisting every transition.
type Manager struct {
	cfg        Config
	ex         Exchange
	norm       *precision.Normalizer
	notifier   connectors.Notifier
	state      StateStore
	alerts     AlertStore
	exceptions ExceptionStore
	engine     *signal.Engine
	planner    *planner.Planner
	risk       *risk.Calculator
	trailMult  decimal.Decimal
	locks      *SymbolLocks
	now        func() time.Time
}

func NewManager(cfg Config, d Deps) *Manager {
	m := &Manager{
		cfg:        cfg,
		ex:         d.Exchange,
		norm:       precision.NewNormalizer(d.Exchange),
		notifier:   d.Notifier,
		state:      d.State,
		alerts:     d.Alerts,
		exceptions: d.Exceptions,
		engine:     d.Engine,
		planner:    d.Planner,
		risk:       d.Risk,
		trailMult:  decimal.NewFromFloat(cfg.TrailATRMult),
		locks:      NewSymbolLocks(),
		now:        d.Now,
	}
	if m.engine == nil {
		m.engine = signal.NewEngine(signal.DefaultConfig())
	}
	if m.planner == nil {
		m.planner = planner.New(planner.DefaultConfig())
	}
	if m.risk == nil {
		m.risk = risk.NewCalculator(risk.DefaultConfig())
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.cfg.MaxSubmitAttempts <= 0 {
		m.cfg.MaxSubmitAttempts = 1
	}
	return m
}

func (m *Manager) Locks() *SymbolLocks { return m.locks }

func (m *Manager) Normalizer() *precision.Normalizer { return m.norm }

// Evaluate runs one pass over a symbol: reconcile every open position with
// the exchange, then plan new entries when the account allows it. Settings
// are a snapshot taken at the start of the pass.
func (m *Manager) Evaluate(ctx context.Context, symbol string, settings model.AccountSettings) (*SymbolReport, error) {
	unlock := m.locks.Lock(symbol)
	defer unlock()

	log := logger.WithFields(map[string]interface{}{
		"component": "lifecycle",
		"symbol":    symbol,
	})

	report := &SymbolReport{Symbol: symbol, Regime: signal.RegimeInsufficientData}
	mkt := m.loadMarket(ctx, symbol, settings.Mode)
	if mkt != nil {
		report.Regime = mkt.eval.Regime
	}

	open, err := m.state.FindOpenBySymbol(ctx, symbol)
	if err != nil {
		return report, fmt.Errorf("load open positions: %w", err)
	}

	for i := range open {
		p := &open[i]
		if err := m.advance(ctx, p, mkt, report); err != nil {
			log.WithField("position_id", p.ID).WithError(err).Warn("position not advanced this pass")
		}
	}

	if settings.Paused {
		log.Debug("paused, skipping new entries")
	} else if settings.Watching(symbol) && mkt != nil {
		if err := m.planEntries(ctx, symbol, settings, mkt, open, report); err != nil {
			log.WithError(err).Warn("entry planning failed")
		}
	}

	m.surfaceUnprotected(ctx, symbol, report)
	return report, nil
}

func (m *Manager) loadMarket(ctx context.Context, symbol string, mode model.Mode) *market {
	series, err := m.ex.GetCandles(ctx, symbol, m.cfg.Timeframe, m.cfg.CandleLimit)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "lifecycle",
			"symbol":    symbol,
		}).WithError(err).Warn("candles unavailable")
		return nil
	}
	last, err := m.ex.GetTicker(ctx, symbol)
	if err != nil || !last.IsPositive() {
		c, ok := series.Last()
		if !ok {
			return nil
		}
		last = c.Close
	}
	return &market{
		series: series,
		eval:   m.engine.Evaluate(series, mode),
		last:   last,
	}
}

// advance moves one open position as far as the exchange state allows.
func (m *Manager) advance(ctx context.Context, p *model.Position, mkt *market, report *SymbolReport) error {
	switch p.State {
	case model.PositionStatePlanned:
		return m.submitEntry(ctx, p, report)
	case model.PositionStatePendingEntry:
		return m.pollEntry(ctx, p, report)
	case model.PositionStateProtected:
		return m.pollProtection(ctx, p, mkt, report)
	}
	return nil
}

// surfaceUnprotected notifies every open fill that still lacks protection.
func (m *Manager) surfaceUnprotected(ctx context.Context, symbol string, report *SymbolReport) {
	open, err := m.state.FindOpenBySymbol(ctx, symbol)
	if err != nil {
		return
	}
	report.Unprotected = report.Unprotected[:0]
	for _, p := range open {
		if !p.UnprotectedFill {
			continue
		}
		report.Unprotected = append(report.Unprotected, p.ID)
		m.notify(ctx, fmt.Sprintf("⚠️ %s: %v, position %s size %s entry %s (%s)",
			p.Symbol, ErrUnprotectedFill, p.ID, p.FilledSize, p.EntryPrice, p.LastError))
	}
}

func (m *Manager) notify(ctx context.Context, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SendText(ctx, text); err != nil {
		logger.WithField("component", "lifecycle").WithError(err).Warn("notification failed")
	}
}

func (m *Manager) capture(ctx context.Context, method string, p *model.Position, err error) {
	data := map[string]interface{}{}
	if p != nil {
		data["symbol"] = p.Symbol
		data["position_id"] = p.ID
		data["state"] = string(p.State)
	}
	Capture(ctx, m.exceptions, serviceName, "lifecycle", method, "error", err, data)
}

// errorClass labels exchange errors for metrics.
func errorClass(err error) string {
	switch {
	case connectors.IsTransient(err):
		return "transient"
	case isPrecision(err):
		return "precision"
	case isRejected(err):
		return "rejected"
	default:
		return "other"
	}
}
