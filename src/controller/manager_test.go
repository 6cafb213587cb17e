package controller

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spotexecutor/src/connectors"
	"spotexecutor/src/database"
	"spotexecutor/src/model"
	"spotexecutor/src/repository"
)

const sym = "ETH-USDT"

type harness struct {
	m        *Manager
	fx       *fakeExchange
	state    *repository.StateRepository
	alerts   *repository.AlertRepository
	trades   *repository.TradeRepository
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	db, err := database.Open("file::memory:", 1, 1)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		fx:       newFakeExchange(),
		state:    (&repository.StateRepository{}).WithDB(db),
		alerts:   (&repository.AlertRepository{}).WithDB(db),
		trades:   (&repository.TradeRepository{}).WithDB(db),
		notifier: &recordingNotifier{},
	}
	h.m = NewManager(cfg, Deps{
		Exchange:   h.fx,
		Notifier:   h.notifier,
		State:      h.state,
		Alerts:     h.alerts,
		Exceptions: &recordingExceptionRepo{},
	})
	return h
}

func dipSettings() model.AccountSettings {
	return model.AccountSettings{
		RiskFraction: decimal.RequireFromString("0.01"),
		Mode:         model.ModeTrend,
		AutoDip:      true,
		Watchlist:    []string{sym},
	}
}

func (h *harness) pass(t *testing.T, settings model.AccountSettings) *SymbolReport {
	t.Helper()
	report, err := h.m.Evaluate(context.Background(), sym, settings)
	require.NoError(t, err)
	return report
}

func (h *harness) only(t *testing.T) model.Position {
	t.Helper()
	open, err := h.state.FindOpenBySymbol(context.Background(), sym)
	require.NoError(t, err)
	require.Len(t, open, 1)
	return open[0]
}

func (h *harness) logCount(t *testing.T, id string) int {
	t.Helper()
	logs, err := h.state.FindLogs(context.Background(), id)
	require.NoError(t, err)
	return len(logs)
}

func (h *harness) addDipAlert(t *testing.T, trigger int64) {
	t.Helper()
	require.NoError(t, h.alerts.Create(context.Background(), &model.Alert{
		Symbol:  sym,
		Kind:    model.AlertKindDip,
		Trigger: decimal.NewFromInt(trigger),
		Active:  true,
	}))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDipAlertLifecycle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)
	settings := dipSettings()

	// pass 1: the alert fires into a planned position that is submitted at once
	report := h.pass(t, settings)
	require.Len(t, report.Opened, 1)
	p := h.only(t)
	require.Equal(t, model.PositionStatePendingEntry, p.State)
	require.Equal(t, model.OriginDip, p.Origin)
	require.True(t, p.Stop.Equal(dec("3455")), "stop %s", p.Stop)
	require.True(t, p.Target.Equal(dec("3560")), "target %s", p.Target)
	require.True(t, p.Size.Equal(dec("2.2222")), "size %s", p.Size)
	require.Equal(t, 1, h.fx.buys)

	active, err := h.alerts.FindActive(context.Background(), sym)
	require.NoError(t, err)
	require.Empty(t, active)

	// pass 2: nothing happened on the exchange
	logs := h.logCount(t, p.ID)
	h.pass(t, settings)
	require.Equal(t, 1, h.fx.buys)
	require.Equal(t, 0, h.fx.ocos)
	require.Equal(t, logs, h.logCount(t, p.ID))

	// pass 3: the fill is protected
	h.fx.fillOrder(p.EntryOrderID, p.Size)
	h.pass(t, settings)
	p = h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)
	require.True(t, p.Protected)
	require.False(t, p.UnprotectedFill)
	require.True(t, p.EntryPrice.Equal(dec("3500")))
	require.Equal(t, 1, h.fx.ocos)
	algo := h.fx.algos[p.ProtectOrderID]
	require.True(t, algo.sl.Equal(dec("3455")))
	require.True(t, algo.tp.Equal(dec("3560")))
	require.True(t, algo.size.Equal(dec("2.2222")))

	// passes 4 and 5: idempotent
	logs = h.logCount(t, p.ID)
	h.pass(t, settings)
	h.pass(t, settings)
	require.Equal(t, 1, h.fx.ocos)
	require.Equal(t, 1, h.fx.buys)
	require.Equal(t, logs, h.logCount(t, p.ID))
	require.Equal(t, model.PositionStateProtected, h.only(t).State)

	// pass 6: take profit executes
	h.fx.triggerAlgo(p.ProtectOrderID, model.ExitLegTakeProfit)
	report = h.pass(t, settings)
	require.Equal(t, []string{p.ID}, report.Closed)

	closed, err := h.state.FindPosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PositionStateClosed, closed.State)

	trades, err := h.trades.FindClosedBetween(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	require.Equal(t, model.ExitReasonTakeProfit, tr.ExitReason)
	require.True(t, tr.ExitPrice.Equal(dec("3560")))
	require.True(t, tr.RealizedPnL.Equal(dec("133.332")), "pnl %s", tr.RealizedPnL)
	require.Equal(t, "1.3333", tr.RMultiple.StringFixed(4))
	require.True(t, tr.RMultiple.IsPositive())
}

func TestAmbiguousEntryIsAdoptedByClientID(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)
	h.fx.acceptOnError = true
	h.fx.buyErrs = []error{connectors.ErrTransient}

	h.pass(t, dipSettings())
	p := h.only(t)
	require.Equal(t, model.PositionStatePlanned, p.State)
	require.Equal(t, 1, p.SubmitAttempts)
	require.Equal(t, 1, h.fx.buys)

	h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStatePendingEntry, p.State)
	require.Equal(t, h.fx.clientOrders[p.EntryClientID], p.EntryOrderID)
	require.Equal(t, 1, h.fx.buys)
}

func TestProtectionFailureIsSurfacedAndRetried(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)
	h.fx.ocoErrs = []error{connectors.ErrTransient}

	h.pass(t, dipSettings())
	p := h.only(t)
	h.fx.fillOrder(p.EntryOrderID, p.Size)

	report := h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStatePendingEntry, p.State)
	require.True(t, p.UnprotectedFill)
	require.False(t, p.Protected)
	require.Equal(t, []string{p.ID}, report.Unprotected)
	require.Equal(t, 1, h.notifier.count(ErrUnprotectedFill.Error()))
	require.Equal(t, 0, h.fx.ocos)

	report = h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)
	require.True(t, p.Protected)
	require.Empty(t, report.Unprotected)
	require.Equal(t, 1, h.fx.ocos)
}

func TestAmbiguousProtectionIsAdoptedNotDuplicated(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)

	h.pass(t, dipSettings())
	p := h.only(t)
	h.fx.fillOrder(p.EntryOrderID, p.Size)

	// the OCO is accepted but the response is lost
	h.fx.acceptOnError = true
	h.fx.ocoErrs = []error{connectors.ErrTransient}
	h.pass(t, dipSettings())
	require.True(t, h.only(t).UnprotectedFill)
	require.Equal(t, 1, h.fx.ocos)

	h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)
	require.Equal(t, h.fx.clientAlgos[p.ProtectClientID], p.ProtectOrderID)
	require.Equal(t, 1, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestPrecisionRejectionCancelsAfterAttemptLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubmitAttempts = 2
	h := newHarness(t, cfg)
	h.addDipAlert(t, 3500)
	h.fx.buyErrs = []error{connectors.ErrPrecision, connectors.ErrPrecision}

	h.pass(t, dipSettings())
	p := h.only(t)
	require.Equal(t, model.PositionStatePlanned, p.State)
	require.Contains(t, p.LastError, "precision")

	report := h.pass(t, dipSettings())
	require.Equal(t, []string{p.ID}, report.Cancelled)

	got, err := h.state.FindPosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PositionStateCancelled, got.State)
	require.NotEmpty(t, got.Reason)
	require.Equal(t, 0, h.fx.buys)

	trades, err := h.trades.FindClosedBetween(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestCancelledEntryWithPartialFillIsProtected(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)

	h.pass(t, dipSettings())
	p := h.only(t)

	h.fx.fillOrder(p.EntryOrderID, dec("1"))
	h.fx.cancelOrderExternally(p.EntryOrderID)

	h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)
	require.True(t, p.FilledSize.Equal(dec("1")))
	require.True(t, h.fx.algos[p.ProtectOrderID].size.Equal(dec("1")))
}

func TestPauseBlocksOnlyNewEntries(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)

	paused := dipSettings()
	paused.Paused = true
	h.pass(t, paused)

	open, err := h.state.FindOpenBySymbol(context.Background(), sym)
	require.NoError(t, err)
	require.Empty(t, open)
	require.Equal(t, 0, h.fx.buys)

	// an existing position keeps being reconciled while paused
	h.pass(t, dipSettings())
	p := h.only(t)
	h.fx.fillOrder(p.EntryOrderID, p.Size)
	h.pass(t, paused)
	require.Equal(t, model.PositionStateProtected, h.only(t).State)
}

// seedTrend stores a protected trend position with a live OCO.
func seedTrend(t *testing.T, h *harness) model.Position {
	t.Helper()
	ctx := context.Background()
	algoID, err := h.fx.PlaceOCO(ctx, sym, "pseed", dec("1"), dec("4000"), dec("3400"))
	require.NoError(t, err)

	p := &model.Position{
		ID:              uuid.NewString(),
		Symbol:          sym,
		Origin:          model.OriginTrend,
		State:           model.PositionStateProtected,
		EntryClientID:   "eseed",
		EntryOrderID:    "ord-seed",
		PlannedPrice:    dec("3500"),
		SubmittedPrice:  dec("3500"),
		Size:            dec("1"),
		EntryPrice:      dec("3500"),
		FilledSize:      dec("1"),
		InitialStop:     dec("3400"),
		Stop:            dec("3400"),
		Target:          dec("4000"),
		ProtectClientID: "pseed",
		ProtectOrderID:  algoID,
		Protected:       true,
		HighWater:       dec("3500"),
		TrailMult:       dec("2.5"),
	}
	require.NoError(t, h.state.CreatePosition(ctx, p, "seed"))
	return *p
}

func TestTrailingStopAmendsInPlace(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fx.amend = true
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	// 3700 − 2.5 × 30 = 3625
	h.fx.setLast(dec("3700"))
	h.pass(t, settings)
	p := h.only(t)
	require.True(t, p.Stop.Equal(dec("3625")), "stop %s", p.Stop)
	require.True(t, p.HighWater.Equal(dec("3700")))
	require.True(t, p.InitialStop.Equal(dec("3400")))
	require.Equal(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.Equal(t, 1, h.fx.amends)
	require.True(t, h.fx.algos[p.ProtectOrderID].sl.Equal(dec("3625")))

	// same price, and a pullback: the stop never moves down
	h.pass(t, settings)
	h.fx.setLast(dec("3650"))
	h.pass(t, settings)
	p = h.only(t)
	require.True(t, p.Stop.Equal(dec("3625")))
	require.Equal(t, 1, h.fx.amends)
	require.Equal(t, 1, h.fx.ocos)
}

func TestTrailingStopReplacesWithoutAmend(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	h.fx.setLast(dec("3700"))
	h.pass(t, settings)
	p := h.only(t)
	require.True(t, p.Stop.Equal(dec("3625")))
	require.NotEqual(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.Equal(t, 2, h.fx.ocos)
	require.Equal(t, 1, h.fx.algoCancels)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestTrailingStopKeepsOldProtectionWhenCancelFails(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	h.fx.cancelErrs = []error{connectors.ErrTransient}
	h.fx.setLast(dec("3700"))
	h.pass(t, settings)

	p := h.only(t)
	require.True(t, p.Stop.Equal(dec("3400")))
	require.Equal(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.Equal(t, 2, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())
	require.Equal(t, model.OrderStatePending, h.fx.algos[seeded.ProtectOrderID].status.State)
}

func TestExternallyCancelledProtectionIsReplaced(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	require.NoError(t, h.fx.CancelAlgo(context.Background(), sym, seeded.ProtectOrderID))
	h.pass(t, settings)

	p := h.only(t)
	require.True(t, p.Protected)
	require.NotEqual(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.Equal(t, 1, h.fx.liveAlgos())
}

// lossyState drops the first save whose reason starts with prefix, as a
// crash between the exchange call and the flush would.
type lossyState struct {
	*repository.StateRepository
	prefix string
	lost   bool
}

func (s *lossyState) SavePosition(ctx context.Context, p *model.Position, from model.PositionState, reason string) error {
	if !s.lost && strings.HasPrefix(reason, s.prefix) {
		s.lost = true
		return errors.New("disk I/O error")
	}
	return s.StateRepository.SavePosition(ctx, p, from, reason)
}

func TestTrailingReplacementAdoptedAfterLostFlush(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	state := &lossyState{StateRepository: h.state, prefix: "trailing stop"}
	h.m = NewManager(DefaultConfig(), Deps{
		Exchange:   h.fx,
		Notifier:   h.notifier,
		State:      state,
		Alerts:     h.alerts,
		Exceptions: &recordingExceptionRepo{},
	})
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	// the replacement is live and the old OCO cancelled, but the switch is not stored
	h.fx.setLast(dec("3700"))
	h.pass(t, settings)
	require.True(t, state.lost)
	p := h.only(t)
	require.Equal(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.NotEmpty(t, p.ReplaceClientID)
	require.Equal(t, 2, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())

	h.pass(t, settings)
	p = h.only(t)
	require.Empty(t, p.ReplaceClientID)
	require.True(t, p.Protected)
	require.False(t, p.UnprotectedFill)
	require.NotEqual(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.True(t, p.Stop.Equal(dec("3625")), "stop %s", p.Stop)
	require.Equal(t, model.OrderStatePending, h.fx.algos[p.ProtectOrderID].status.State)
	require.Equal(t, 2, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())

	// later passes leave the adopted order alone
	h.pass(t, settings)
	require.Equal(t, 2, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestUnsentTrailingReplacementIsDropped(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)
	settings := model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend}

	// a transient failure leaves the outcome unknown; nothing reached the exchange
	h.fx.ocoErrs = []error{connectors.ErrTransient}
	h.fx.setLast(dec("3700"))
	h.pass(t, settings)
	p := h.only(t)
	require.NotEmpty(t, p.ReplaceClientID)
	require.True(t, p.Stop.Equal(dec("3400")))

	h.fx.setLast(dec("3500"))
	h.pass(t, settings)
	p = h.only(t)
	require.Empty(t, p.ReplaceClientID)
	require.Equal(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.Equal(t, 1, h.fx.ocos)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestGridCycleCompletionReportedOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	settings := model.AccountSettings{
		RiskFraction: dec("0.01"),
		Mode:         model.ModeGrid,
		Watchlist:    []string{sym},
	}

	report := h.pass(t, settings)
	require.Len(t, report.Opened, 3)
	require.Equal(t, 3, h.fx.buys)

	open, err := h.state.FindOpenBySymbol(context.Background(), sym)
	require.NoError(t, err)
	require.Len(t, open, 3)
	sort.Slice(open, func(i, j int) bool { return open[i].PlannedPrice.GreaterThan(open[j].PlannedPrice) })
	cycleID := open[0].GridCycleID
	require.NotEmpty(t, cycleID)
	for i, leg := range open {
		require.Equal(t, model.OriginGridLeg, leg.Origin)
		require.Equal(t, cycleID, leg.GridCycleID)
		require.Len(t, leg.SiblingIDs, 3)
		if i > 0 {
			require.True(t, leg.PlannedPrice.LessThan(open[i-1].PlannedPrice))
		}
	}
	// anchor 3495, step 15
	require.True(t, open[0].PlannedPrice.Equal(dec("3480")))
	require.True(t, open[0].Target.Equal(dec("3510")))
	require.True(t, open[0].Stop.Equal(dec("3456")))

	// second pass with a live cycle does not plan another one
	h.pass(t, settings)
	require.Equal(t, 3, h.fx.buys)

	for _, leg := range open {
		h.fx.cancelOrderExternally(leg.EntryOrderID)
	}
	settings.Paused = true
	report = h.pass(t, settings)
	require.Len(t, report.Cancelled, 3)
	require.Equal(t, 1, h.notifier.count("grid cycle"))

	cycle, err := h.state.FindGridCycle(context.Background(), cycleID)
	require.NoError(t, err)
	require.NotNil(t, cycle.CompletedAt)

	h.pass(t, settings)
	require.Equal(t, 1, h.notifier.count("grid cycle"))
}

func TestManualCloseSellsAndRecordsTrade(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)

	h.pass(t, dipSettings())
	p := h.only(t)
	h.fx.fillOrder(p.EntryOrderID, p.Size)
	h.pass(t, dipSettings())
	p = h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)

	h.fx.setLast(dec("3520"))
	closed, err := h.m.ClosePosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PositionStateClosed, closed.State)
	require.Equal(t, 1, h.fx.sells)
	require.Equal(t, 0, h.fx.liveAlgos())

	trades, err := h.trades.FindClosedBetween(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.ExitReasonManual, trades[0].ExitReason)
	require.True(t, trades[0].ExitPrice.Equal(dec("3520")))

	_, err = h.m.ClosePosition(context.Background(), p.ID)
	require.True(t, errors.Is(err, ErrPositionClosed))

	_, err = h.m.ClosePosition(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrPositionNotFound))
}

func TestManualCloseWithoutFillCancels(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDipAlert(t, 3500)

	h.pass(t, dipSettings())
	p := h.only(t)

	closed, err := h.m.ClosePosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PositionStateCancelled, closed.State)
	require.Equal(t, 0, h.fx.sells)
	require.Equal(t, model.OrderStateCancelled, h.fx.orders[p.EntryOrderID].State)
}

func TestManualCloseSellFailureRestoresProtection(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)

	h.fx.sellErrs = []error{connectors.ErrTransient}
	_, err := h.m.ClosePosition(context.Background(), seeded.ID)
	require.ErrorIs(t, err, connectors.ErrTransient)
	require.NotErrorIs(t, err, ErrUnprotectedFill)

	p := h.only(t)
	require.Equal(t, model.PositionStateProtected, p.State)
	require.True(t, p.Protected)
	require.False(t, p.UnprotectedFill)
	require.NotEqual(t, seeded.ProtectOrderID, p.ProtectOrderID)
	require.NotEqual(t, seeded.ProtectClientID, p.ProtectClientID)
	require.Equal(t, 0, h.fx.sells)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestManualCloseSellFailureFlagsUnprotectedFill(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	seeded := seedTrend(t, h)

	h.fx.sellErrs = []error{connectors.ErrTransient}
	h.fx.ocoErrs = []error{connectors.ErrTransient}
	_, err := h.m.ClosePosition(context.Background(), seeded.ID)
	require.ErrorIs(t, err, ErrUnprotectedFill)

	p := h.only(t)
	require.True(t, p.UnprotectedFill)
	require.False(t, p.Protected)
	require.Equal(t, 0, h.fx.liveAlgos())

	// the next pass re-protects and clears the flag
	report := h.pass(t, model.AccountSettings{RiskFraction: dec("0.01"), Mode: model.ModeTrend, Paused: true})
	require.Empty(t, report.Unprotected)
	p = h.only(t)
	require.True(t, p.Protected)
	require.False(t, p.UnprotectedFill)
	require.Equal(t, 1, h.fx.liveAlgos())
}

func TestRealizedPnLAndR(t *testing.T) {
	p := &model.Position{
		EntryPrice:  dec("3000"),
		InitialStop: dec("2940"),
		FilledSize:  dec("1.66"),
	}
	pnl, r := realized(p, dec("3120"))
	require.True(t, pnl.Equal(dec("199.2")), "pnl %s", pnl)
	require.True(t, r.Equal(dec("2")), "r %s", r)

	pnl, r = realized(p, dec("2940"))
	require.True(t, pnl.Equal(dec("-99.6")))
	require.True(t, r.Equal(dec("-1")))
}
