package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/connectors"
	"spotexecutor/src/metrics"
	"spotexecutor/src/model"
	"spotexecutor/src/tp_sl"
)

func isPrecision(err error) bool { return errors.Is(err, connectors.ErrPrecision) }
func isRejected(err error) bool  { return errors.Is(err, connectors.ErrRejected) }
func isNotFound(err error) bool  { return errors.Is(err, connectors.ErrNotFound) }

func positionLog(p *model.Position) *logger.Entry {
	return logger.WithFields(map[string]interface{}{
		"component":   "lifecycle",
		"symbol":      p.Symbol,
		"position_id": p.ID,
		"origin":      p.Origin,
		"state":       p.State,
	})
}

// ---------------------------------------------------
// PLANNED
// ---------------------------------------------------

// submitEntry places the limit buy of a planned position. A position that
// was already attempted is first looked up by client order id so an order
// accepted before a crash or timeout is adopted instead of duplicated.
func (m *Manager) submitEntry(ctx context.Context, p *model.Position, report *SymbolReport) error {
	log := positionLog(p)

	if p.SubmitAttempts > 0 {
		st, err := m.ex.FindOrderByClientID(ctx, p.Symbol, p.EntryClientID)
		switch {
		case err == nil:
			log.WithField("order_id", st.OrderID).Info("adopting entry order found by client id")
			p.EntryOrderID = st.OrderID
			p.State = model.PositionStatePendingEntry
			p.LastError = ""
			if err := m.state.SavePosition(ctx, p, model.PositionStatePlanned, "entry adopted by client id"); err != nil {
				return err
			}
			metrics.IncTransition(string(p.Origin), string(p.State))
			return m.pollEntry(ctx, p, report)
		case isNotFound(err):
		default:
			return fmt.Errorf("lookup entry by client id: %w", err)
		}
	}

	price, err := m.norm.NormalizePrice(ctx, p.Symbol, p.PlannedPrice)
	if err != nil {
		return fmt.Errorf("normalize entry price: %w", err)
	}
	size, err := m.norm.NormalizeSize(ctx, p.Symbol, p.Size)
	if err != nil {
		return fmt.Errorf("normalize entry size: %w", err)
	}
	if !price.IsPositive() || !size.IsPositive() {
		return m.cancel(ctx, p, model.PositionStatePlanned,
			fmt.Sprintf("normalized entry is empty: price %s size %s", price, size), report)
	}

	// the attempt is durable before the order leaves
	p.SubmitAttempts++
	p.SubmittedPrice = price
	p.Size = size
	if err := m.state.SavePosition(ctx, p, model.PositionStatePlanned, ""); err != nil {
		return err
	}

	orderID, err := m.ex.PlaceLimitBuy(ctx, p.Symbol, p.EntryClientID, price, size)
	if err != nil {
		metrics.IncOrderError("entry", errorClass(err))
		p.LastError = err.Error()

		switch {
		case isPrecision(err):
			if p.SubmitAttempts >= m.cfg.MaxSubmitAttempts {
				return m.cancel(ctx, p, model.PositionStatePlanned,
					fmt.Sprintf("precision rejected %d times: %v", p.SubmitAttempts, err), report)
			}
			log.WithError(err).Warn("entry rejected for precision, retrying next pass")
			return m.state.SavePosition(ctx, p, model.PositionStatePlanned, "")
		case isRejected(err):
			return m.cancel(ctx, p, model.PositionStatePlanned, fmt.Sprintf("entry rejected: %v", err), report)
		default:
			// outcome unknown; the next pass resolves it by client id
			log.WithError(err).Warn("entry submission failed")
			if serr := m.state.SavePosition(ctx, p, model.PositionStatePlanned, ""); serr != nil {
				return serr
			}
			return err
		}
	}

	metrics.IncOrderPlaced("entry")
	p.EntryOrderID = orderID
	p.State = model.PositionStatePendingEntry
	p.LastError = ""
	if err := m.state.SavePosition(ctx, p, model.PositionStatePlanned, "entry submitted"); err != nil {
		return err
	}
	metrics.IncTransition(string(p.Origin), string(p.State))

	log.WithFields(map[string]interface{}{
		"order_id": orderID,
		"price":    price.String(),
		"size":     size.String(),
	}).Info("entry order submitted")
	m.notify(ctx, fmt.Sprintf("🟢 %s %s: limit buy %s @ %s (SL %s / TP %s)",
		p.Symbol, p.Origin, size, price, p.Stop, p.Target))
	return nil
}

// ---------------------------------------------------
// PENDING_ENTRY
// ---------------------------------------------------

func (m *Manager) pollEntry(ctx context.Context, p *model.Position, report *SymbolReport) error {
	if p.UnprotectedFill {
		return m.protect(ctx, p, report)
	}

	st, err := m.ex.GetOrder(ctx, p.Symbol, p.EntryOrderID)
	if err != nil {
		return fmt.Errorf("get entry order: %w", err)
	}

	switch st.State {
	case model.OrderStatePending, model.OrderStatePartiallyFilled:
		// partial fills are protected once the order is done
		return nil
	case model.OrderStateFilled:
		return m.recordFill(ctx, p, st, report)
	case model.OrderStateCancelled, model.OrderStateRejected:
		if st.FilledSize.IsPositive() {
			return m.recordFill(ctx, p, st, report)
		}
		return m.cancel(ctx, p, model.PositionStatePendingEntry,
			fmt.Sprintf("entry order %s on exchange", st.State), report)
	}
	return nil
}

// recordFill persists the fill with the hazard flag set, then protects it.
func (m *Manager) recordFill(ctx context.Context, p *model.Position, st *model.OrderStatus, report *SymbolReport) error {
	now := m.now()
	p.FilledSize = st.FilledSize
	p.EntryPrice = st.AvgPrice
	if !p.EntryPrice.IsPositive() {
		p.EntryPrice = p.SubmittedPrice
	}
	p.FilledAt = &now
	p.UnprotectedFill = true
	p.HighWater = p.EntryPrice
	if err := m.state.SavePosition(ctx, p, model.PositionStatePendingEntry, "entry filled"); err != nil {
		return err
	}

	positionLog(p).WithFields(map[string]interface{}{
		"fill_price":  p.EntryPrice.String(),
		"filled_size": p.FilledSize.String(),
	}).Info("entry filled")
	return m.protect(ctx, p, report)
}

// protect places the OCO for a filled entry. The protective client id is
// persisted before submission; after an ambiguous failure the algo order is
// looked up by that id before anything is resubmitted.
func (m *Manager) protect(ctx context.Context, p *model.Position, report *SymbolReport) error {
	log := positionLog(p)
	from := p.State

	if p.ProtectClientID == "" {
		p.ProtectClientID = newClientID("p")
		if err := m.state.SavePosition(ctx, p, from, ""); err != nil {
			return err
		}
	} else if p.ProtectionAttempts > 0 {
		st, err := m.ex.FindAlgoByClientID(ctx, p.Symbol, p.ProtectClientID)
		switch {
		case err == nil && (st.State == model.OrderStatePending || st.State == model.OrderStateFilled):
			log.WithField("algo_id", st.OrderID).Info("adopting protective order found by client id")
			return m.markProtected(ctx, p, from, st.OrderID, "protection adopted by client id")
		case err == nil:
			// the earlier OCO is gone; a fresh client id avoids reusing it
			p.ProtectClientID = newClientID("p")
			if err := m.state.SavePosition(ctx, p, from, ""); err != nil {
				return err
			}
		case isNotFound(err):
		default:
			return fmt.Errorf("lookup protection by client id: %w", err)
		}
	}

	size, err := m.norm.NormalizeSize(ctx, p.Symbol, p.FilledSize)
	if err != nil {
		return m.protectFailed(ctx, p, from, fmt.Errorf("normalize protective size: %w", err))
	}
	stop, err := m.norm.NormalizePrice(ctx, p.Symbol, p.Stop)
	if err != nil {
		return m.protectFailed(ctx, p, from, fmt.Errorf("normalize stop: %w", err))
	}
	target, err := m.norm.NormalizePrice(ctx, p.Symbol, p.Target)
	if err != nil {
		return m.protectFailed(ctx, p, from, fmt.Errorf("normalize target: %w", err))
	}
	if !size.IsPositive() {
		return m.protectFailed(ctx, p, from, fmt.Errorf("filled size %s is below lot size", p.FilledSize))
	}

	p.ProtectionAttempts++
	if err := m.state.SavePosition(ctx, p, from, ""); err != nil {
		return err
	}

	algoID, err := m.ex.PlaceOCO(ctx, p.Symbol, p.ProtectClientID, size, target, stop)
	if err != nil {
		metrics.IncOrderError("oco", errorClass(err))
		if isRejected(err) {
			// nothing was created under this id
			p.ProtectClientID = newClientID("p")
		}
		return m.protectFailed(ctx, p, from, err)
	}

	metrics.IncOrderPlaced("oco")
	log.WithFields(map[string]interface{}{
		"algo_id": algoID,
		"stop":    stop.String(),
		"target":  target.String(),
		"size":    size.String(),
	}).Info("protective order accepted")

	if err := m.markProtected(ctx, p, from, algoID, "protective order accepted"); err != nil {
		return err
	}
	m.notify(ctx, fmt.Sprintf("🛡️ %s %s protected: size %s entry %s SL %s TP %s",
		p.Symbol, p.Origin, size, p.EntryPrice, stop, target))
	return nil
}

func (m *Manager) markProtected(ctx context.Context, p *model.Position, from model.PositionState, algoID, reason string) error {
	p.ProtectOrderID = algoID
	p.Protected = true
	p.UnprotectedFill = false
	p.LastError = ""
	p.State = model.PositionStateProtected
	if err := m.state.SavePosition(ctx, p, from, reason); err != nil {
		return err
	}
	if from != p.State {
		metrics.IncTransition(string(p.Origin), string(p.State))
	}
	return nil
}

func (m *Manager) protectFailed(ctx context.Context, p *model.Position, from model.PositionState, cause error) error {
	p.LastError = cause.Error()
	if err := m.state.SavePosition(ctx, p, from, ""); err != nil {
		return err
	}
	if !errors.Is(cause, connectors.ErrTransient) {
		m.capture(ctx, "protect", p, cause)
	}
	return fmt.Errorf("%w: %v", ErrUnprotectedFill, cause)
}

// ---------------------------------------------------
// PROTECTED
// ---------------------------------------------------

func (m *Manager) pollProtection(ctx context.Context, p *model.Position, mkt *market, report *SymbolReport) error {
	if p.ReplaceClientID != "" {
		if err := m.resolveReplacement(ctx, p); err != nil {
			return err
		}
	}
	if !p.Protected || p.ProtectOrderID == "" {
		return m.protect(ctx, p, report)
	}

	st, err := m.ex.GetAlgoOrder(ctx, p.Symbol, p.ProtectOrderID)
	if err != nil {
		return fmt.Errorf("get protective order: %w", err)
	}

	switch st.State {
	case model.OrderStateFilled:
		return m.closeFromProtection(ctx, p, st, report)
	case model.OrderStateCancelled, model.OrderStateRejected:
		positionLog(p).WithField("algo_id", p.ProtectOrderID).Warn("protective order gone, re-protecting")
		p.Protected = false
		p.UnprotectedFill = true
		p.ProtectOrderID = ""
		p.ProtectClientID = newClientID("p")
		p.ProtectionAttempts = 0
		if err := m.state.SavePosition(ctx, p, p.State, fmt.Sprintf("protective order %s externally", st.State)); err != nil {
			return err
		}
		return m.protect(ctx, p, report)
	}

	if p.Origin == model.OriginTrend && mkt != nil {
		return m.trail(ctx, p, mkt)
	}
	return nil
}

func (m *Manager) closeFromProtection(ctx context.Context, p *model.Position, st *model.OrderStatus, report *SymbolReport) error {
	exit := st.AvgPrice
	reason := model.ExitReasonStopLoss
	switch st.Exit {
	case model.ExitLegTakeProfit:
		reason = model.ExitReasonTakeProfit
	case model.ExitLegNone:
		if exit.GreaterThanOrEqual(p.Target) {
			reason = model.ExitReasonTakeProfit
		}
	}
	if !exit.IsPositive() {
		exit = p.Stop
		if reason == model.ExitReasonTakeProfit {
			exit = p.Target
		}
	}
	return m.close(ctx, p, exit, reason, report)
}

// trail ratchets the stop of a trend position toward high water − mult×ATR.
func (m *Manager) trail(ctx context.Context, p *model.Position, mkt *market) error {
	atr := mkt.eval.ATR()
	mult := p.TrailMult
	if !mult.IsPositive() {
		mult = m.trailMult
	}

	next := tp_sl.ComputeNextStopLoss(p.Stop, p.HighWater, p.EntryPrice, mkt.last, atr, mult)
	hwChanged := !next.HighWater.Equal(p.HighWater)

	if !next.Moved {
		if hwChanged {
			p.HighWater = next.HighWater
			return m.state.SavePosition(ctx, p, p.State, "")
		}
		return nil
	}

	stop, err := m.norm.NormalizePrice(ctx, p.Symbol, next.Stop)
	if err != nil {
		return fmt.Errorf("normalize trailing stop: %w", err)
	}
	if !stop.GreaterThan(p.Stop) || !stop.LessThan(mkt.last) {
		p.HighWater = next.HighWater
		if hwChanged {
			return m.state.SavePosition(ctx, p, p.State, "")
		}
		return nil
	}

	if err := m.replaceProtection(ctx, p, stop); err != nil {
		// the old protection stays in force
		if hwChanged {
			p.HighWater = next.HighWater
			if serr := m.state.SavePosition(ctx, p, p.State, ""); serr != nil {
				return serr
			}
		}
		return err
	}

	old := p.Stop
	p.Stop = stop
	p.HighWater = next.HighWater
	if err := m.state.SavePosition(ctx, p, p.State, fmt.Sprintf("trailing stop %s -> %s", old, stop)); err != nil {
		return err
	}
	positionLog(p).WithFields(map[string]interface{}{
		"old_stop":   old.String(),
		"new_stop":   stop.String(),
		"high_water": p.HighWater.String(),
	}).Info("trailing stop raised")
	m.notify(ctx, fmt.Sprintf("📈 %s trend: stop raised %s -> %s", p.Symbol, old, stop))
	return nil
}

// replaceProtection moves the stop of the live OCO. With amend support it is
// a single call. Otherwise a new OCO is placed first and the old one
// cancelled; if the cancel fails the new one is withdrawn and the old stays.
func (m *Manager) replaceProtection(ctx context.Context, p *model.Position, stop decimal.Decimal) error {
	log := positionLog(p)

	if am, ok := m.ex.(Amender); ok && am.SupportsAmend() {
		if err := am.AmendOCO(ctx, p.Symbol, p.ProtectOrderID, stop); err != nil {
			metrics.IncOrderError("amend", errorClass(err))
			return fmt.Errorf("amend protective order: %w", err)
		}
		metrics.IncOrderPlaced("amend")
		return nil
	}

	size, err := m.norm.NormalizeSize(ctx, p.Symbol, p.FilledSize)
	if err != nil {
		return err
	}
	target, err := m.norm.NormalizePrice(ctx, p.Symbol, p.Target)
	if err != nil {
		return err
	}

	// the replacement is durable before it leaves; a lost flush is settled
	// by client id on the next pass
	clientID := newClientID("p")
	p.ReplaceClientID = clientID
	p.ReplaceStop = stop
	if err := m.state.SavePosition(ctx, p, p.State, ""); err != nil {
		return err
	}

	newID, err := m.ex.PlaceOCO(ctx, p.Symbol, clientID, size, target, stop)
	if err != nil {
		metrics.IncOrderError("oco", errorClass(err))
		if isRejected(err) {
			if serr := m.dropReplacement(ctx, p); serr != nil {
				return serr
			}
		}
		return fmt.Errorf("place replacement protective order: %w", err)
	}
	metrics.IncOrderPlaced("oco")

	if err := m.ex.CancelAlgo(ctx, p.Symbol, p.ProtectOrderID); err != nil {
		log.WithError(err).Warn("old protective order not cancelled, withdrawing replacement")
		if rerr := m.ex.CancelAlgo(ctx, p.Symbol, newID); rerr != nil {
			// still recorded as pending; the next pass finishes the switch
			m.capture(ctx, "replaceProtection", p,
				fmt.Errorf("two protective orders live (%s, %s): %w", p.ProtectOrderID, newID, rerr))
			return fmt.Errorf("cancel old protective order: %w", err)
		}
		if serr := m.dropReplacement(ctx, p); serr != nil {
			return serr
		}
		return fmt.Errorf("cancel old protective order: %w", err)
	}

	p.ProtectOrderID = newID
	p.ProtectClientID = clientID
	p.ReplaceClientID = ""
	p.ReplaceStop = decimal.Zero
	return nil
}

// resolveReplacement settles a trailing replacement whose outcome was never
// flushed. A live replacement takes over from the recorded OCO, which is
// cancelled if still pending. If the recorded OCO executed first the
// replacement is withdrawn.
func (m *Manager) resolveReplacement(ctx context.Context, p *model.Position) error {
	log := positionLog(p).WithField("replace_client_id", p.ReplaceClientID)

	st, err := m.ex.FindAlgoByClientID(ctx, p.Symbol, p.ReplaceClientID)
	if err != nil {
		if isNotFound(err) {
			return m.dropReplacement(ctx, p)
		}
		return fmt.Errorf("lookup replacement protection by client id: %w", err)
	}
	if st.State == model.OrderStateCancelled || st.State == model.OrderStateRejected {
		return m.dropReplacement(ctx, p)
	}

	if p.ProtectOrderID != "" {
		old, err := m.ex.GetAlgoOrder(ctx, p.Symbol, p.ProtectOrderID)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("get protective order: %w", err)
		}
		switch {
		case err != nil:
		case old.State == model.OrderStateFilled:
			log.WithField("algo_id", st.OrderID).Warn("protective order executed before the switch, withdrawing replacement")
			if cerr := m.ex.CancelAlgo(ctx, p.Symbol, st.OrderID); cerr != nil && !isNotFound(cerr) {
				return fmt.Errorf("withdraw replacement protective order: %w", cerr)
			}
			return m.dropReplacement(ctx, p)
		case old.State == model.OrderStatePending || old.State == model.OrderStatePartiallyFilled:
			if cerr := m.ex.CancelAlgo(ctx, p.Symbol, p.ProtectOrderID); cerr != nil && !isNotFound(cerr) {
				return fmt.Errorf("cancel old protective order: %w", cerr)
			}
		}
	}

	log.WithField("algo_id", st.OrderID).Info("adopting trailing replacement found by client id")
	old := p.Stop
	p.ProtectOrderID = st.OrderID
	p.ProtectClientID = p.ReplaceClientID
	if p.ReplaceStop.IsPositive() {
		p.Stop = p.ReplaceStop
	}
	p.ReplaceClientID = ""
	p.ReplaceStop = decimal.Zero
	return m.state.SavePosition(ctx, p, p.State, fmt.Sprintf("trailing stop %s -> %s adopted by client id", old, p.Stop))
}

func (m *Manager) dropReplacement(ctx context.Context, p *model.Position) error {
	p.ReplaceClientID = ""
	p.ReplaceStop = decimal.Zero
	return m.state.SavePosition(ctx, p, p.State, "")
}

// ---------------------------------------------------
// Terminal transitions
// ---------------------------------------------------

// close records the trade and moves the position to CLOSED in one store
// transaction. PnL = (exit − entry) × size, R = PnL / (size × |entry − initial stop|).
func (m *Manager) close(ctx context.Context, p *model.Position, exit decimal.Decimal, reason model.ExitReason, report *SymbolReport) error {
	from := p.State
	pnl, r := realized(p, exit)

	opened := p.CreatedAt
	if p.FilledAt != nil {
		opened = *p.FilledAt
	}
	trade := &model.Trade{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Origin:      p.Origin,
		GridCycleID: p.GridCycleID,
		EntryPrice:  p.EntryPrice,
		StopPrice:   p.InitialStop,
		TargetPrice: p.Target,
		Size:        p.FilledSize,
		ExitPrice:   exit,
		ExitReason:  reason,
		RealizedPnL: pnl,
		RMultiple:   r,
		OpenedAt:    opened,
		ClosedAt:    m.now(),
	}

	p.State = model.PositionStateClosed
	p.Protected = false
	p.UnprotectedFill = false
	p.Reason = string(reason)

	cycle, err := m.state.Finalize(ctx, p, from, trade, string(reason))
	if err != nil {
		p.State = from
		return err
	}

	metrics.IncTransition(string(p.Origin), string(p.State))
	metrics.ObserveTrade(string(reason), pnl.InexactFloat64())
	report.Closed = append(report.Closed, p.ID)

	positionLog(p).WithFields(map[string]interface{}{
		"exit":   exit.String(),
		"reason": reason,
		"pnl":    pnl.StringFixed(2),
		"r":      r.StringFixed(2),
	}).Info("position closed")
	m.notify(ctx, fmt.Sprintf("🏁 %s %s closed by %s at %s: PnL %s, R %s",
		p.Symbol, p.Origin, reason, exit, pnl.StringFixed(2), r.StringFixed(2)))
	m.cycleCompleted(ctx, cycle)
	return nil
}

// cancel moves an unfilled position to CANCELLED with a reason.
func (m *Manager) cancel(ctx context.Context, p *model.Position, from model.PositionState, reason string, report *SymbolReport) error {
	p.State = model.PositionStateCancelled
	p.Reason = reason

	cycle, err := m.state.Finalize(ctx, p, from, nil, reason)
	if err != nil {
		p.State = from
		return err
	}

	metrics.IncTransition(string(p.Origin), string(p.State))
	report.Cancelled = append(report.Cancelled, p.ID)
	positionLog(p).WithField("reason", reason).Info("position cancelled")
	m.notify(ctx, fmt.Sprintf("✖️ %s %s cancelled: %s", p.Symbol, p.Origin, reason))
	m.cycleCompleted(ctx, cycle)
	return nil
}

func (m *Manager) cycleCompleted(ctx context.Context, cycle *model.GridCycle) {
	if cycle == nil {
		return
	}
	metrics.IncGridCycleCompleted()
	m.notify(ctx, fmt.Sprintf("📦 %s grid cycle %s complete (%d legs)", cycle.Symbol, cycle.ID, len(cycle.LegIDs)))
}

// realized returns PnL and R-multiple of a long exit.
func realized(p *model.Position, exit decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pnl := exit.Sub(p.EntryPrice).Mul(p.FilledSize)
	risk := p.FilledSize.Mul(p.EntryPrice.Sub(p.InitialStop).Abs())
	if !risk.IsPositive() {
		return pnl, decimal.Zero
	}
	return pnl, pnl.DivRound(risk, 8)
}
