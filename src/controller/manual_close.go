package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"spotexecutor/src/metrics"
	"spotexecutor/src/model"
)

// ClosePosition is the operator close. It cancels whatever order is live,
// market-sells the filled quantity and records a manual trade. A position
// without a fill becomes CANCELLED.
func (m *Manager) ClosePosition(ctx context.Context, positionID string) (*model.Position, error) {
	p, err := m.state.FindPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}

	unlock := m.locks.Lock(p.Symbol)
	defer unlock()

	// reload under the lock; a pass may have moved it meanwhile
	p, err = m.state.FindPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	if p.State.Terminal() {
		return p, fmt.Errorf("%w: %s is %s", ErrPositionClosed, positionID, p.State)
	}

	report := &SymbolReport{Symbol: p.Symbol}
	if err := m.closeManually(ctx, p, report); err != nil {
		positionLog(p).WithError(err).Error("manual close failed")
		m.capture(ctx, "ClosePosition", p, err)
		return p, err
	}
	return p, nil
}

// CloseSymbol closes every open position of a symbol and returns the ids it closed.
func (m *Manager) CloseSymbol(ctx context.Context, symbol string) ([]string, error) {
	open, err := m.state.FindOpenBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var closed []string
	var errs []error
	for _, p := range open {
		if _, err := m.ClosePosition(ctx, p.ID); err != nil {
			if errors.Is(err, ErrPositionClosed) {
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		closed = append(closed, p.ID)
	}
	return closed, errors.Join(errs...)
}

func (m *Manager) closeManually(ctx context.Context, p *model.Position, report *SymbolReport) error {
	switch p.State {
	case model.PositionStatePlanned:
		if p.SubmitAttempts > 0 {
			// an accepted order may exist under the client id
			st, err := m.ex.FindOrderByClientID(ctx, p.Symbol, p.EntryClientID)
			switch {
			case err == nil:
				p.EntryOrderID = st.OrderID
				p.State = model.PositionStatePendingEntry
				if err := m.state.SavePosition(ctx, p, model.PositionStatePlanned, "entry adopted by client id"); err != nil {
					return err
				}
				return m.closeManually(ctx, p, report)
			case !isNotFound(err):
				return fmt.Errorf("lookup entry by client id: %w", err)
			}
		}
		return m.cancel(ctx, p, model.PositionStatePlanned, "closed by operator", report)

	case model.PositionStatePendingEntry:
		if !p.UnprotectedFill {
			if err := m.ex.CancelOrder(ctx, p.Symbol, p.EntryOrderID); err != nil && !isNotFound(err) && !isRejected(err) {
				return fmt.Errorf("cancel entry order: %w", err)
			}
			st, err := m.ex.GetOrder(ctx, p.Symbol, p.EntryOrderID)
			if err != nil {
				return fmt.Errorf("get entry order: %w", err)
			}
			if !st.FilledSize.IsPositive() {
				return m.cancel(ctx, p, model.PositionStatePendingEntry, "closed by operator", report)
			}
			p.FilledSize = st.FilledSize
			p.EntryPrice = st.AvgPrice
			if !p.EntryPrice.IsPositive() {
				p.EntryPrice = p.SubmittedPrice
			}
			now := m.now()
			p.FilledAt = &now
			p.UnprotectedFill = true
			if err := m.state.SavePosition(ctx, p, p.State, "entry filled before operator close"); err != nil {
				return err
			}
		} else if p.ProtectionAttempts > 0 {
			// an earlier ambiguous OCO submission may be live
			st, err := m.ex.FindAlgoByClientID(ctx, p.Symbol, p.ProtectClientID)
			switch {
			case err == nil && st.State == model.OrderStatePending:
				if err := m.ex.CancelAlgo(ctx, p.Symbol, st.OrderID); err != nil {
					return fmt.Errorf("cancel protective order: %w", err)
				}
			case err == nil && st.State == model.OrderStateFilled:
				return m.closeFromProtection(ctx, p, st, report)
			case err != nil && !isNotFound(err):
				return fmt.Errorf("lookup protection by client id: %w", err)
			}
		}
		return m.marketExit(ctx, p, report)

	case model.PositionStateProtected:
		if p.ReplaceClientID != "" {
			if err := m.resolveReplacement(ctx, p); err != nil {
				return err
			}
		}
		if p.ProtectOrderID != "" {
			if err := m.ex.CancelAlgo(ctx, p.Symbol, p.ProtectOrderID); err != nil {
				if isRejected(err) {
					// the OCO already executed; close from its fill
					st, gerr := m.ex.GetAlgoOrder(ctx, p.Symbol, p.ProtectOrderID)
					if gerr == nil && st.State == model.OrderStateFilled {
						return m.closeFromProtection(ctx, p, st, report)
					}
				}
				return fmt.Errorf("cancel protective order: %w", err)
			}
			// the fill is exposed until the sell closes it
			p.Protected = false
			p.UnprotectedFill = true
			p.ProtectOrderID = ""
			p.ProtectClientID = newClientID("p")
			p.ProtectionAttempts = 0
			if err := m.state.SavePosition(ctx, p, p.State, "protective order cancelled by operator"); err != nil {
				return err
			}
		}
		err := m.marketExit(ctx, p, report)
		if err == nil || !errors.Is(err, errMarketSell) {
			return err
		}
		positionLog(p).WithError(err).Warn("operator sell failed, restoring protection")
		if perr := m.protect(ctx, p, report); perr != nil {
			return fmt.Errorf("%w; %w", err, perr)
		}
		return fmt.Errorf("%w (protection restored)", err)
	}
	return nil
}

// marketExit sells the filled quantity at market and closes with reason manual.
func (m *Manager) marketExit(ctx context.Context, p *model.Position, report *SymbolReport) error {
	size, err := m.norm.NormalizeSize(ctx, p.Symbol, p.FilledSize)
	if err != nil {
		return err
	}
	if !size.IsPositive() {
		return m.close(ctx, p, p.EntryPrice, model.ExitReasonManual, report)
	}

	orderID, err := m.ex.PlaceMarketSell(ctx, p.Symbol, newClientID("m"), size)
	if err != nil {
		metrics.IncOrderError("market_sell", errorClass(err))
		return fmt.Errorf("%w: %w", errMarketSell, err)
	}
	metrics.IncOrderPlaced("market_sell")

	exit := decimal.Zero
	if st, err := m.ex.GetOrder(ctx, p.Symbol, orderID); err == nil && st.AvgPrice.IsPositive() {
		exit = st.AvgPrice
	} else if last, terr := m.ex.GetTicker(ctx, p.Symbol); terr == nil {
		exit = last
	}
	if !exit.IsPositive() {
		exit = p.EntryPrice
	}
	return m.close(ctx, p, exit, model.ExitReasonManual, report)
}
