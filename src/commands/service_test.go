package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spotexecutor/src/controller"
	"spotexecutor/src/database"
	"spotexecutor/src/model"
	"spotexecutor/src/precision"
	"spotexecutor/src/reporting"
	"spotexecutor/src/repository"
	"spotexecutor/src/risk"
)

type listedInstruments map[string]bool

func (l listedInstruments) Instrument(ctx context.Context, symbol string) (model.Instrument, error) {
	if !l[symbol] {
		return model.Instrument{}, fmt.Errorf("%w: %s", precision.ErrUnknownInstrument, symbol)
	}
	return model.Instrument{Symbol: symbol}, nil
}

type stubCloser struct {
	positions map[string]string // id -> symbol
	closedIDs []string
}

func (c *stubCloser) ClosePosition(ctx context.Context, id string) (*model.Position, error) {
	sym, ok := c.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", controller.ErrPositionNotFound, id)
	}
	delete(c.positions, id)
	c.closedIDs = append(c.closedIDs, id)
	return &model.Position{ID: id, Symbol: sym, State: model.PositionStateClosed}, nil
}

func (c *stubCloser) CloseSymbol(ctx context.Context, symbol string) ([]string, error) {
	var out []string
	for id, sym := range c.positions {
		if sym == symbol {
			p, err := c.ClosePosition(ctx, id)
			if err != nil {
				return out, err
			}
			out = append(out, p.ID)
		}
	}
	return out, nil
}

type fixedReporter struct{ from, to time.Time }

func (r *fixedReporter) Summarize(ctx context.Context, from, to time.Time) (*reporting.Summary, error) {
	r.from, r.to = from, to
	return &reporting.Summary{Quote: "USDT", Trades: 3}, nil
}

type fixture struct {
	svc    *Service
	state  *repository.StateRepository
	closer *stubCloser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("file::memory:", 1, 1)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		state:  (&repository.StateRepository{}).WithDB(db),
		closer: &stubCloser{positions: map[string]string{}},
	}
	defaults := Config{
		Watchlist:    []string{"btcusdt", "ETH-USDT", "eth/usdt"},
		RiskPerTrade: 0.01,
		Mode:         "auto",
	}.DefaultSettings()

	f.svc = NewService(defaults, Deps{
		Settings:    (&repository.SettingsRepository{}).WithDB(db),
		Alerts:      (&repository.AlertRepository{}).WithDB(db),
		Positions:   f.state,
		Closer:      f.closer,
		Reporter:    &fixedReporter{},
		Instruments: listedInstruments{"BTC-USDT": true, "ETH-USDT": true, "SOL-USDT": true},
		Risk:        risk.NewCalculator(risk.DefaultConfig()),
	})
	return f
}

func TestDefaultSettings(t *testing.T) {
	s := Config{Watchlist: []string{"btcusdt", "BTC-USDT", " "}, RiskPerTrade: 0.005, Mode: "bogus"}.DefaultSettings()
	require.Equal(t, []string{"BTC-USDT"}, s.Watchlist)
	require.Equal(t, model.ModeAuto, s.Mode)
	require.True(t, s.RiskFraction.Equal(decimal.RequireFromString("0.005")))
}

func TestWatchlistCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.AddSymbol(ctx, "solusdt")
	require.NoError(t, err)
	require.Equal(t, []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}, list)

	// adding twice keeps one entry
	list, err = f.svc.AddSymbol(ctx, "SOL-USDT")
	require.NoError(t, err)
	require.Len(t, list, 3)

	_, err = f.svc.AddSymbol(ctx, "doge")
	require.ErrorIs(t, err, ErrUnknownSymbol)

	_, err = f.svc.AddSymbol(ctx, "  ")
	require.ErrorIs(t, err, ErrInvalidArgument)

	list, err = f.svc.RemoveSymbol(ctx, "btc/usdt")
	require.NoError(t, err)
	require.Equal(t, []string{"ETH-USDT", "SOL-USDT"}, list)

	_, err = f.svc.RemoveSymbol(ctx, "BTC-USDT")
	require.ErrorIs(t, err, ErrUnknownSymbol)

	s, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ETH-USDT", "SOL-USDT"}, s.Watchlist)
}

func TestSettingsCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mode, err := f.svc.SetMode(ctx, "Grid")
	require.NoError(t, err)
	require.Equal(t, model.ModeGrid, mode)
	_, err = f.svc.SetMode(ctx, "scalp")
	require.ErrorIs(t, err, ErrInvalidArgument)

	r, err := f.svc.SetRisk(ctx, "0.015")
	require.NoError(t, err)
	require.Equal(t, "0.015", r.String())
	_, err = f.svc.SetRisk(ctx, "0.5")
	require.ErrorIs(t, err, risk.ErrRiskOutOfRange)
	_, err = f.svc.SetRisk(ctx, "one percent")
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, f.svc.Pause(ctx))
	on, err := f.svc.SetAutoDip(ctx, "on")
	require.NoError(t, err)
	require.True(t, on)
	_, err = f.svc.SetAutoBreakout(ctx, "maybe")
	require.ErrorIs(t, err, ErrInvalidArgument)

	s, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, model.ModeGrid, s.Mode)
	require.True(t, s.RiskFraction.Equal(decimal.RequireFromString("0.015")), "rejected values leave the risk unchanged")
	require.True(t, s.Paused)
	require.True(t, s.AutoDip)
	require.False(t, s.AutoBreakout)

	require.NoError(t, f.svc.Resume(ctx))
	s, err = f.svc.Settings(ctx)
	require.NoError(t, err)
	require.False(t, s.Paused)
}

func TestAlertCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateAlert(ctx, "ethusdt", "dip", "3500")
	require.NoError(t, err)
	require.Equal(t, "ETH-USDT", a.Symbol)
	require.NotZero(t, a.ID)
	_, err = f.svc.CreateAlert(ctx, "ETH-USDT", "breakout", "3900.5")
	require.NoError(t, err)
	_, err = f.svc.CreateAlert(ctx, "BTC-USDT", "dip", "60000")
	require.NoError(t, err)

	_, err = f.svc.CreateAlert(ctx, "ETH-USDT", "pump", "1")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.CreateAlert(ctx, "ETH-USDT", "dip", "-3")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.CreateAlert(ctx, "XYZ-USDT", "dip", "3")
	require.ErrorIs(t, err, ErrUnknownSymbol)

	alerts, err := f.svc.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	require.NoError(t, f.svc.RemoveAlert(ctx, fmt.Sprint(a.ID)))
	require.ErrorIs(t, f.svc.RemoveAlert(ctx, fmt.Sprint(a.ID)), ErrNotFound)
	require.ErrorIs(t, f.svc.RemoveAlert(ctx, "abc"), ErrInvalidArgument)

	n, err := f.svc.ClearAlerts(ctx, "eth-usdt")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	alerts, err = f.svc.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "BTC-USDT", alerts[0].Symbol)
}

func TestCloseCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	f.closer.positions = map[string]string{a: "ETH-USDT", b: "ETH-USDT", c: "BTC-USDT"}

	ids, err := f.svc.Close(ctx, c)
	require.NoError(t, err)
	require.Equal(t, []string{c}, ids)

	_, err = f.svc.Close(ctx, c)
	require.ErrorIs(t, err, ErrNotFound)

	ids, err = f.svc.Close(ctx, "ethusdt")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a, b}, ids)

	_, err = f.svc.Close(ctx, "ETH-USDT")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Close(ctx, "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPnLIsAllTime(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.PnL(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, s.Trades)
	r := f.svc.reporter.(*fixedReporter)
	require.True(t, r.from.IsZero())
	require.True(t, r.to.IsZero())
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.state.CreatePosition(ctx, &model.Position{
		ID:              uuid.NewString(),
		Symbol:          "ETH-USDT",
		Origin:          model.OriginDip,
		State:           model.PositionStatePendingEntry,
		EntryClientID:   "e1",
		Size:            decimal.RequireFromString("2.2222"),
		FilledSize:      decimal.RequireFromString("2.2222"),
		EntryPrice:      decimal.NewFromInt(3500),
		Stop:            decimal.NewFromInt(3455),
		Target:          decimal.NewFromInt(3560),
		UnprotectedFill: true,
		CreatedAt:       time.Now().UTC(),
	}, "test"))
	_, err := f.svc.CreateAlert(ctx, "BTC-USDT", "dip", "60000")
	require.NoError(t, err)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)
	require.Equal(t, 1, st.Alerts)

	text := st.Text()
	require.Contains(t, text, "Mode: auto | paused: false")
	require.Contains(t, text, "Risk: 1.00%")
	require.Contains(t, text, "Watchlist: BTC-USDT, ETH-USDT")
	require.Contains(t, text, "• ETH-USDT dip pending_entry size 2.2222 stop 3455 target 3560 entry 3500 ⚠️ unprotected")
}

func TestStatusWithoutPositions(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	require.Contains(t, st.Text(), "Positions:\n(none)")
}

func TestSettingsLoadError(t *testing.T) {
	svc := NewService(model.AccountSettings{}, Deps{Settings: failingSettings{}})
	_, err := svc.SetMode(context.Background(), "trend")
	if err == nil || !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

var errStoreDown = errors.New("store down")

type failingSettings struct{}

func (failingSettings) Load(ctx context.Context, defaults model.AccountSettings) (model.AccountSettings, error) {
	return model.AccountSettings{}, errStoreDown
}

func (failingSettings) Save(ctx context.Context, s *model.AccountSettings) error {
	return errStoreDown
}
