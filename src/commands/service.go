// Package commands exposes one operation per operator command. Every
// operation validates its raw input and fails with a descriptive error
// instead of changing state.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/controller"
	"spotexecutor/src/model"
	"spotexecutor/src/precision"
	"spotexecutor/src/reporting"
	"spotexecutor/src/risk"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrNotFound        = errors.New("not found")
)

type SettingsStore interface {
	Load(ctx context.Context, defaults model.AccountSettings) (model.AccountSettings, error)
	Save(ctx context.Context, s *model.AccountSettings) error
}

type AlertStore interface {
	Create(ctx context.Context, a *model.Alert) error
	FindActive(ctx context.Context, symbol string) ([]model.Alert, error)
	Delete(ctx context.Context, id uint) (bool, error)
	DeleteBySymbol(ctx context.Context, symbol string) (int64, error)
}

type PositionReader interface {
	FindOpen(ctx context.Context) ([]model.Position, error)
}

// Closer is the operator close of the lifecycle manager.
type Closer interface {
	ClosePosition(ctx context.Context, positionID string) (*model.Position, error)
	CloseSymbol(ctx context.Context, symbol string) ([]string, error)
}

type Reporter interface {
	Summarize(ctx context.Context, from, to time.Time) (*reporting.Summary, error)
}

type InstrumentLookup interface {
	Instrument(ctx context.Context, symbol string) (model.Instrument, error)
}

type Deps struct {
	Settings    SettingsStore
	Alerts      AlertStore
	Positions   PositionReader
	Closer      Closer
	Reporter    Reporter
	Instruments InstrumentLookup
	Risk        *risk.Calculator
}

// Service applies operator commands. Settings changes are serialized so a
// pass always reads a complete snapshot.
type Service struct {
	mu          sync.Mutex
	defaults    model.AccountSettings
	settings    SettingsStore
	alerts      AlertStore
	positions   PositionReader
	closer      Closer
	reporter    Reporter
	instruments InstrumentLookup
	risk        *risk.Calculator
}

func NewService(defaults model.AccountSettings, d Deps) *Service {
	s := &Service{
		defaults:    defaults.Clone(),
		settings:    d.Settings,
		alerts:      d.Alerts,
		positions:   d.Positions,
		closer:      d.Closer,
		reporter:    d.Reporter,
		instruments: d.Instruments,
		risk:        d.Risk,
	}
	if s.risk == nil {
		s.risk = risk.NewCalculator(risk.DefaultConfig())
	}
	return s
}

// Settings returns a copy of the current account settings.
func (s *Service) Settings(ctx context.Context) (model.AccountSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.settings.Load(ctx, s.defaults)
	if err != nil {
		return model.AccountSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return cur.Clone(), nil
}

func (s *Service) update(ctx context.Context, op string, fn func(*model.AccountSettings) error) (model.AccountSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.settings.Load(ctx, s.defaults)
	if err != nil {
		return model.AccountSettings{}, fmt.Errorf("load settings: %w", err)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur.Clone(), err
	}
	if err := s.settings.Save(ctx, &next); err != nil {
		return cur.Clone(), fmt.Errorf("save settings: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "commands",
		"op":        op,
		"mode":      next.Mode,
		"risk":      next.RiskFraction.String(),
		"paused":    next.Paused,
		"watchlist": next.Watchlist,
	}).Info("account settings updated")
	return next.Clone(), nil
}

func (s *Service) symbol(raw string) (string, error) {
	sym := controller.NormalizeSymbol(raw)
	if sym == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	return sym, nil
}

// AddSymbol adds an exchange-listed symbol to the watchlist.
func (s *Service) AddSymbol(ctx context.Context, raw string) ([]string, error) {
	sym, err := s.symbol(raw)
	if err != nil {
		return nil, err
	}
	if s.instruments != nil {
		if _, err := s.instruments.Instrument(ctx, sym); err != nil {
			if errors.Is(err, precision.ErrUnknownInstrument) {
				return nil, fmt.Errorf("%w: %s is not listed on the exchange", ErrUnknownSymbol, sym)
			}
			return nil, err
		}
	}
	next, err := s.update(ctx, "AddSymbol", func(a *model.AccountSettings) error {
		if !a.Watching(sym) {
			a.Watchlist = append(a.Watchlist, sym)
		}
		return nil
	})
	return next.Watchlist, err
}

// RemoveSymbol stops planning new entries for a symbol. Its open positions
// are still reconciled until they close.
func (s *Service) RemoveSymbol(ctx context.Context, raw string) ([]string, error) {
	sym, err := s.symbol(raw)
	if err != nil {
		return nil, err
	}
	next, err := s.update(ctx, "RemoveSymbol", func(a *model.AccountSettings) error {
		out := a.Watchlist[:0]
		for _, w := range a.Watchlist {
			if w != sym {
				out = append(out, w)
			}
		}
		if len(out) == len(a.Watchlist) {
			return fmt.Errorf("%w: %s is not in the watchlist", ErrUnknownSymbol, sym)
		}
		a.Watchlist = out
		return nil
	})
	return next.Watchlist, err
}

func (s *Service) SetMode(ctx context.Context, raw string) (model.Mode, error) {
	mode := model.Mode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: mode must be auto, trend or grid, got %q", ErrInvalidArgument, raw)
	}
	_, err := s.update(ctx, "SetMode", func(a *model.AccountSettings) error {
		a.Mode = mode
		return nil
	})
	return mode, err
}

// SetRisk sets the per-trade risk fraction. Out-of-range values are rejected, never clamped.
func (s *Service) SetRisk(ctx context.Context, raw string) (decimal.Decimal, error) {
	fraction, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: risk must be a number, got %q", ErrInvalidArgument, raw)
	}
	if err := s.risk.ValidateRisk(fraction); err != nil {
		return decimal.Zero, err
	}
	_, err = s.update(ctx, "SetRisk", func(a *model.AccountSettings) error {
		a.RiskFraction = fraction
		return nil
	})
	return fraction, err
}

// Pause blocks new entries from the next pass on.
func (s *Service) Pause(ctx context.Context) error {
	_, err := s.update(ctx, "Pause", func(a *model.AccountSettings) error {
		a.Paused = true
		return nil
	})
	return err
}

func (s *Service) Resume(ctx context.Context) error {
	_, err := s.update(ctx, "Resume", func(a *model.AccountSettings) error {
		a.Paused = false
		return nil
	})
	return err
}

func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", ErrInvalidArgument, raw)
}

func (s *Service) SetAutoDip(ctx context.Context, raw string) (bool, error) {
	on, err := parseToggle(raw)
	if err != nil {
		return false, err
	}
	_, err = s.update(ctx, "SetAutoDip", func(a *model.AccountSettings) error {
		a.AutoDip = on
		return nil
	})
	return on, err
}

func (s *Service) SetAutoBreakout(ctx context.Context, raw string) (bool, error) {
	on, err := parseToggle(raw)
	if err != nil {
		return false, err
	}
	_, err = s.update(ctx, "SetAutoBreakout", func(a *model.AccountSettings) error {
		a.AutoBreakout = on
		return nil
	})
	return on, err
}

// CreateAlert registers a dip or breakout trigger for a symbol.
func (s *Service) CreateAlert(ctx context.Context, rawSymbol, rawKind, rawPrice string) (*model.Alert, error) {
	sym, err := s.symbol(rawSymbol)
	if err != nil {
		return nil, err
	}
	kind := model.AlertKind(strings.ToLower(strings.TrimSpace(rawKind)))
	if kind != model.AlertKindDip && kind != model.AlertKindBreakout {
		return nil, fmt.Errorf("%w: kind must be dip or breakout, got %q", ErrInvalidArgument, rawKind)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rawPrice))
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be a positive number, got %q", ErrInvalidArgument, rawPrice)
	}
	if s.instruments != nil {
		if _, err := s.instruments.Instrument(ctx, sym); err != nil {
			if errors.Is(err, precision.ErrUnknownInstrument) {
				return nil, fmt.Errorf("%w: %s is not listed on the exchange", ErrUnknownSymbol, sym)
			}
			return nil, err
		}
	}

	a := &model.Alert{Symbol: sym, Kind: kind, Trigger: price, Active: true}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return a, nil
}

func (s *Service) RemoveAlert(ctx context.Context, rawID string) error {
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("%w: alert id must be a positive integer, got %q", ErrInvalidArgument, rawID)
	}
	ok, err := s.alerts.Delete(ctx, uint(id))
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}
	return nil
}

// ClearAlerts removes every alert of a symbol and returns how many were removed.
func (s *Service) ClearAlerts(ctx context.Context, rawSymbol string) (int64, error) {
	sym, err := s.symbol(rawSymbol)
	if err != nil {
		return 0, err
	}
	n, err := s.alerts.DeleteBySymbol(ctx, sym)
	if err != nil {
		return 0, fmt.Errorf("clear alerts: %w", err)
	}
	return n, nil
}

func (s *Service) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.alerts.FindActive(ctx, "")
}

// Close closes one position when target is a position id, or every open
// position of a symbol otherwise. It returns the ids it closed.
func (s *Service) Close(ctx context.Context, target string) ([]string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: position id or symbol is required", ErrInvalidArgument)
	}
	if _, err := uuid.Parse(target); err == nil {
		p, err := s.closer.ClosePosition(ctx, target)
		if errors.Is(err, controller.ErrPositionNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if err != nil {
			return nil, err
		}
		return []string{p.ID}, nil
	}

	sym, err := s.symbol(target)
	if err != nil {
		return nil, err
	}
	closed, err := s.closer.CloseSymbol(ctx, sym)
	if err != nil {
		return closed, err
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("%w: no open position for %s", ErrNotFound, sym)
	}
	return closed, nil
}

// PnL summarizes every recorded trade and the open positions.
func (s *Service) PnL(ctx context.Context) (*reporting.Summary, error) {
	return s.reporter.Summarize(ctx, time.Time{}, time.Time{})
}

type Status struct {
	Settings  model.AccountSettings `json:"settings"`
	Positions []model.Position      `json:"positions"`
	Alerts    int                   `json:"alerts"`
}

func (s *Service) Status(ctx context.Context) (*Status, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.positions.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	alerts, err := s.alerts.FindActive(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Symbol < open[j].Symbol })
	return &Status{Settings: settings, Positions: open, Alerts: len(alerts)}, nil
}

func (st *Status) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s | paused: %t\n", st.Settings.Mode, st.Settings.Paused)
	fmt.Fprintf(&b, "Auto: dip=%t breakout=%t\n", st.Settings.AutoDip, st.Settings.AutoBreakout)
	fmt.Fprintf(&b, "Risk: %s%%\n", st.Settings.RiskFraction.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(&b, "Watchlist: %s\n", strings.Join(st.Settings.Watchlist, ", "))
	fmt.Fprintf(&b, "Active alerts: %d\n", st.Alerts)
	b.WriteString("Positions:")
	if len(st.Positions) == 0 {
		b.WriteString("\n(none)")
	}
	for _, p := range st.Positions {
		fmt.Fprintf(&b, "\n• %s %s %s size %s stop %s target %s", p.Symbol, p.Origin, p.State, p.Size, p.Stop, p.Target)
		if p.HasFill() {
			fmt.Fprintf(&b, " entry %s", p.EntryPrice)
		}
		if p.UnprotectedFill {
			b.WriteString(" ⚠️ unprotected")
		}
	}
	return b.String()
}
