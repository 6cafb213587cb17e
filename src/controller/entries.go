package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/model"
	"spotexecutor/src/planner"
	"spotexecutor/src/repository"
	"spotexecutor/src/risk"
	"spotexecutor/src/signal"
)

// planEntries turns the current signals into new planned positions and
// submits them. Only one active position per (symbol, origin) is allowed;
// grid legs share a cycle instead.
func (m *Manager) planEntries(
	ctx context.Context,
	symbol string,
	settings model.AccountSettings,
	mkt *market,
	open []model.Position,
	report *SymbolReport,
) error {

	active := map[model.Origin]bool{}
	for _, p := range open {
		if !p.State.Terminal() {
			active[p.Origin] = true
		}
	}
	if mkt.eval.Regime == signal.RegimeInsufficientData {
		return nil
	}

	e := &entryContext{m: m, symbol: symbol, settings: settings, mkt: mkt}
	var errs []error

	if err := m.alertEntries(ctx, e, active, report); err != nil {
		errs = append(errs, err)
	}

	switch mkt.eval.Regime {
	case signal.RegimeTrendLong:
		if active[model.OriginTrend] {
			break
		}
		ok, kind := m.engine.TrendEntry(mkt.series, mkt.eval.Indicators)
		if !ok {
			break
		}
		plan, err := m.planner.Trend(mkt.last, mkt.eval.ATR(), mkt.series)
		if err != nil {
			errs = append(errs, err)
			break
		}
		plan.Reason = fmt.Sprintf("trend %s: ADX %.1f EMA %.2f > %.2f",
			kind, mkt.eval.Indicators.ADX, mkt.eval.Indicators.EMAFast, mkt.eval.Indicators.EMASlow)
		if err := e.open(ctx, plan, 0, report); err != nil {
			errs = append(errs, err)
		}

	case signal.RegimeRange:
		if active[model.OriginGridLeg] {
			break
		}
		if err := m.openGrid(ctx, e, report); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// alertEntries fires dip and breakout alerts that the last price crossed,
// when the matching auto toggle is on. An alert that fires into a position
// is deactivated in the same transaction.
func (m *Manager) alertEntries(ctx context.Context, e *entryContext, active map[model.Origin]bool, report *SymbolReport) error {
	if m.alerts == nil || (!e.settings.AutoDip && !e.settings.AutoBreakout) {
		return nil
	}
	alerts, err := m.alerts.FindActive(ctx, e.symbol)
	if err != nil {
		return err
	}

	var dips, breaks []model.Alert
	for _, a := range alerts {
		if !a.Fires(e.mkt.last) {
			continue
		}
		switch a.Kind {
		case model.AlertKindDip:
			dips = append(dips, a)
		case model.AlertKindBreakout:
			breaks = append(breaks, a)
		}
	}
	byTrigger := func(s []model.Alert) {
		sort.Slice(s, func(i, j int) bool { return s[i].Trigger.LessThan(s[j].Trigger) })
	}
	byTrigger(dips)
	byTrigger(breaks)

	var errs []error
	atr := e.mkt.eval.ATR()

	if len(dips) > 0 && e.settings.AutoDip && !active[model.OriginDip] {
		a := dips[0]
		plan, err := m.planner.Dip(a.Trigger, atr)
		if err == nil {
			plan.Reason = fmt.Sprintf("dip alert %d at %s", a.ID, a.Trigger)
			err = e.openFromAlert(ctx, plan, a.ID, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(breaks) > 0 && e.settings.AutoBreakout && !active[model.OriginBreakout] {
		a := breaks[0]
		if !m.engine.BreakoutConfirmed(e.mkt.eval.Indicators) {
			logger.WithFields(map[string]interface{}{
				"component": "lifecycle",
				"symbol":    e.symbol,
				"alert_id":  a.ID,
			}).Debug("breakout alert crossed without trend confirmation")
		} else {
			plan, err := m.planner.Breakout(e.mkt.last, atr)
			if err == nil {
				plan.Reason = fmt.Sprintf("breakout alert %d at %s", a.ID, a.Trigger)
				err = e.openFromAlert(ctx, plan, a.ID, report)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// openGrid plans a ladder of legs under the current price. Legs below the
// minimum position value are dropped; the cycle holds the rest.
func (m *Manager) openGrid(ctx context.Context, e *entryContext, report *SymbolReport) error {
	n := m.cfg.GridLegs
	plans, err := m.planner.Grid(e.mkt.last, e.mkt.eval.ATR(), n)
	if err != nil {
		return err
	}

	cycle := &model.GridCycle{
		ID:        uuid.NewString(),
		Symbol:    e.symbol,
		CreatedAt: m.now(),
	}
	var legs []*model.Position
	for i, plan := range plans {
		size, err := e.size(ctx, plan, len(plans))
		if err != nil {
			if errors.Is(err, risk.ErrBelowMinimum) {
				logger.WithFields(map[string]interface{}{
					"component": "lifecycle",
					"symbol":    e.symbol,
					"leg":       i + 1,
				}).WithError(err).Info("grid leg skipped")
				continue
			}
			return err
		}
		leg := e.position(plan, size)
		leg.GridCycleID = cycle.ID
		leg.Reason = fmt.Sprintf("grid leg %d/%d: BB width %.4f ADX %.1f",
			i+1, len(plans), e.mkt.eval.Indicators.BBWidth, e.mkt.eval.Indicators.ADX)
		legs = append(legs, leg)
		cycle.LegIDs = append(cycle.LegIDs, leg.ID)
	}
	if len(legs) == 0 {
		return nil
	}
	for _, leg := range legs {
		leg.SiblingIDs = cycle.LegIDs
	}

	if err := m.state.CreateGridCycle(ctx, cycle, legs); err != nil {
		return err
	}
	m.notify(ctx, fmt.Sprintf("🧱 %s grid planned: %d legs from %s down to %s",
		e.symbol, len(legs), legs[0].PlannedPrice, legs[len(legs)-1].PlannedPrice))

	var errs []error
	for _, leg := range legs {
		report.Opened = append(report.Opened, leg.ID)
		if err := m.submitEntry(ctx, leg, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// entryContext carries what one symbol's entries share within a pass. The
// balance is fetched at most once.
type entryContext struct {
	m        *Manager
	symbol   string
	settings model.AccountSettings
	mkt      *market
	balance  *decimal.Decimal
}

func (e *entryContext) equity(ctx context.Context) (decimal.Decimal, error) {
	if e.balance != nil {
		return *e.balance, nil
	}
	b, err := e.m.ex.GetBalance(ctx, e.m.cfg.QuoteCcy)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	e.balance = &b
	return b, nil
}

// size returns the lot-normalized size of a plan split across n legs, or
// risk.ErrBelowMinimum when its value is too small to trade.
func (e *entryContext) size(ctx context.Context, plan planner.Plan, n int) (decimal.Decimal, error) {
	balance, err := e.equity(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := e.m.risk.LegSize(balance, e.settings.RiskFraction, plan.Entry, plan.Stop, n)
	if err != nil {
		return decimal.Zero, err
	}
	size, err := e.m.norm.NormalizeSize(ctx, e.symbol, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := e.m.risk.CheckMinimum(size, plan.Entry); err != nil {
		return decimal.Zero, err
	}
	if inst, err := e.m.norm.Instrument(ctx, e.symbol); err == nil && size.LessThan(inst.MinSz) {
		return decimal.Zero, fmt.Errorf("%w: size %s < min size %s", risk.ErrBelowMinimum, size, inst.MinSz)
	}
	return size, nil
}

func (e *entryContext) position(plan planner.Plan, size decimal.Decimal) *model.Position {
	p := &model.Position{
		ID:            uuid.NewString(),
		Symbol:        e.symbol,
		Origin:        plan.Origin,
		State:         model.PositionStatePlanned,
		EntryClientID: newClientID("e"),
		PlannedPrice:  plan.Entry,
		Size:          size,
		InitialStop:   plan.Stop,
		Stop:          plan.Stop,
		Target:        plan.Target,
		Reason:        plan.Reason,
		CreatedAt:     e.m.now(),
	}
	if plan.Origin == model.OriginTrend {
		p.TrailMult = e.m.trailMult
	}
	return p
}

// open persists a single planned position and submits it.
func (e *entryContext) open(ctx context.Context, plan planner.Plan, alertID uint, report *SymbolReport) error {
	size, err := e.size(ctx, plan, 1)
	if err != nil {
		return e.skip(plan, err)
	}
	p := e.position(plan, size)

	if alertID > 0 {
		err = e.m.state.CreateFromAlert(ctx, p, alertID)
	} else {
		err = e.m.state.CreatePosition(ctx, p, plan.Reason)
	}
	if err != nil {
		return err
	}

	report.Opened = append(report.Opened, p.ID)
	logger.WithFields(map[string]interface{}{
		"component":   "lifecycle",
		"symbol":      p.Symbol,
		"position_id": p.ID,
		"origin":      p.Origin,
		"entry":       plan.Entry.String(),
		"stop":        plan.Stop.String(),
		"target":      plan.Target.String(),
		"size":        size.String(),
	}).Info("position planned")
	return e.m.submitEntry(ctx, p, report)
}

func (e *entryContext) openFromAlert(ctx context.Context, plan planner.Plan, alertID uint, report *SymbolReport) error {
	err := e.open(ctx, plan, alertID, report)
	if errors.Is(err, repository.ErrAlertInactive) {
		return nil
	}
	return err
}

// skip swallows plans that are too small to trade and reports the rest.
func (e *entryContext) skip(plan planner.Plan, err error) error {
	if errors.Is(err, risk.ErrBelowMinimum) {
		logger.WithFields(map[string]interface{}{
			"component": "lifecycle",
			"symbol":    e.symbol,
			"origin":    plan.Origin,
		}).WithError(err).Info("plan skipped")
		return nil
	}
	return fmt.Errorf("size %s plan: %w", plan.Origin, err)
}
