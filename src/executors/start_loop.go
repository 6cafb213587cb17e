package executors

import (
	"context"
	"fmt"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"spotexecutor/src/controller"
	"spotexecutor/src/metrics"
	"spotexecutor/src/model"
)

type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, settings model.AccountSettings) (*controller.SymbolReport, error)
}

type SettingsSource interface {
	Settings(ctx context.Context) (model.AccountSettings, error)
}

type OpenPositions interface {
	OpenSymbols(ctx context.Context) ([]string, error)
	FindOpen(ctx context.Context) ([]model.Position, error)
}

// Loop runs one evaluation pass per period.
type Loop struct {
	cfg       Config
	eval      Evaluator
	settings  SettingsSource
	positions OpenPositions
	now       func() time.Time
}

func NewLoop(cfg Config, eval Evaluator, settings SettingsSource, positions OpenPositions) *Loop {
	if cfg.MaxParallelSymbols <= 0 {
		cfg.MaxParallelSymbols = 1
	}
	if cfg.LoopPeriod <= 0 {
		cfg.LoopPeriod = time.Minute
	}
	return &Loop{
		cfg:       cfg,
		eval:      eval,
		settings:  settings,
		positions: positions,
		now:       time.Now,
	}
}

// StartLoop runs a pass at once and then on every tick until ctx is done.
func (l *Loop) StartLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	l.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Debug("loop tick")
			l.runLogged(ctx)
		}
	}
}

func (l *Loop) runLogged(ctx context.Context) {
	if _, err := l.RunPass(ctx); err != nil {
		logger.WithError(err).Error("evaluation pass failed")
	}
}

// RunPass evaluates every watched symbol and every symbol with an open
// position. Symbols run in parallel, each under its own lock; one symbol's
// failure does not stop the others.
func (l *Loop) RunPass(ctx context.Context) ([]*controller.SymbolReport, error) {
	start := l.now()
	defer func() { metrics.ObservePass(time.Since(start).Seconds()) }()

	// settings are read once; commands applied during the pass count from the next one
	settings, err := l.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	open, err := l.positions.OpenSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open symbols: %w", err)
	}
	symbols := passSymbols(settings.Watchlist, open)

	reports := make([]*controller.SymbolReport, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxParallelSymbols)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			report, err := l.eval.Evaluate(gctx, sym, settings.Clone())
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"component": "executor",
					"symbol":    sym,
				}).WithError(err).Error("symbol evaluation failed")
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	l.recordOpenPositions(ctx)

	out := reports[:0]
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	logger.WithFields(map[string]interface{}{
		"component": "executor",
		"symbols":   len(symbols),
		"paused":    settings.Paused,
		"elapsed":   l.now().Sub(start).String(),
	}).Info("evaluation pass done")
	return out, nil
}

func (l *Loop) recordOpenPositions(ctx context.Context) {
	open, err := l.positions.FindOpen(ctx)
	if err != nil {
		logger.WithField("component", "executor").WithError(err).Warn("open position metrics skipped")
		return
	}
	counts := map[model.PositionState]int{
		model.PositionStatePlanned:      0,
		model.PositionStatePendingEntry: 0,
		model.PositionStateProtected:    0,
	}
	unprotected := 0
	for _, p := range open {
		counts[p.State]++
		if p.UnprotectedFill {
			unprotected++
		}
	}
	for state, n := range counts {
		metrics.SetOpenPositions(string(state), n)
	}
	metrics.SetUnprotectedFills(unprotected)
}

// passSymbols keeps the watchlist order and appends symbols that are no
// longer watched but still hold open positions.
func passSymbols(watchlist, open []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range watchlist {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	var extra []string
	for _, s := range open {
		if !seen[s] {
			seen[s] = true
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
