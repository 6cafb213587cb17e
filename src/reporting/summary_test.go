package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spotexecutor/src/model"
)

type staticTrades struct {
	trades   []model.Trade
	from, to time.Time
}

func (s *staticTrades) FindClosedBetween(ctx context.Context, from, to time.Time) ([]model.Trade, error) {
	s.from, s.to = from, to
	return s.trades, nil
}

type staticPositions []model.Position

func (s staticPositions) FindOpen(ctx context.Context) ([]model.Position, error) {
	return s, nil
}

type tickers struct {
	prices map[string]decimal.Decimal
	calls  int
}

func (t *tickers) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t.calls++
	p, ok := t.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("ticker down")
	}
	return p, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarize(t *testing.T) {
	trades := &staticTrades{trades: []model.Trade{
		{PositionID: "a", RealizedPnL: d("133.332"), RMultiple: d("1.33333333")},
		{PositionID: "b", RealizedPnL: d("-60"), RMultiple: d("-1")},
	}}
	open := staticPositions{
		{ID: "p1", Symbol: "ETH-USDT", Origin: model.OriginDip, FilledSize: d("2"), EntryPrice: d("3000"), InitialStop: d("2940")},
		{ID: "p2", Symbol: "ETH-USDT", Origin: model.OriginTrend, Size: d("1"), PlannedPrice: d("2990")},
		{ID: "p3", Symbol: "ETH-USDT", Origin: model.OriginTrend, FilledSize: d("1"), EntryPrice: d("3060"), InitialStop: d("3000")},
		{ID: "p4", Symbol: "BTC-USDT", Origin: model.OriginGridLeg, FilledSize: d("0.1"), EntryPrice: d("60000"), InitialStop: d("59000")},
	}
	prices := &tickers{prices: map[string]decimal.Decimal{"ETH-USDT": d("3030")}}

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewAggregator(trades, open, prices, "USDT").Summarize(context.Background(), from, time.Time{})
	require.NoError(t, err)
	require.Equal(t, from, trades.from)

	require.Equal(t, 2, s.Trades)
	require.Equal(t, 1, s.Wins)
	require.True(t, s.Realized.Equal(d("73.332")), "realized %s", s.Realized)
	require.True(t, s.RealizedR.Equal(d("0.33333333")))

	// p2 has no fill; p3 is marked at a loss
	require.Len(t, s.Open, 3)
	require.True(t, s.Open[0].PnL.Equal(d("60")))
	require.True(t, s.Open[0].R.Equal(d("0.5")))
	require.True(t, s.Open[1].PnL.Equal(d("-30")))
	require.True(t, s.Open[1].R.Equal(d("-0.5")))
	require.True(t, s.Open[2].Stale)
	require.True(t, s.Unrealized.Equal(d("30")), "unrealized %s", s.Unrealized)
	require.True(t, s.UnrealizedR.IsZero())

	// one ticker call per symbol
	require.Equal(t, 2, prices.calls)

	text := s.Text("Daily PnL & R summary")
	require.True(t, strings.HasPrefix(text, "📊 Daily PnL & R summary\n"))
	require.Contains(t, text, "ETH-USDT dip open: PnL 60.00 USDT | R 0.50")
	require.Contains(t, text, "BTC-USDT grid-leg open: size 0.1 entry 60000, no price")
	require.Contains(t, text, "— Realized: 73.33 USDT | ΣR 0.33 (2 trades, 1 wins)")
	require.Contains(t, text, "— Unrealized: 30.00 USDT | ΣR 0.00")
}

func TestUnrealizedZeroRisk(t *testing.T) {
	p := model.Position{FilledSize: d("1"), EntryPrice: d("100"), InitialStop: d("100")}
	pnl, r := Unrealized(p, d("110"))
	if !pnl.Equal(d("10")) {
		t.Fatalf("expected pnl 10, got %s", pnl)
	}
	if !r.IsZero() {
		t.Fatalf("expected zero R without risk, got %s", r)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s, err := NewAggregator(&staticTrades{}, staticPositions{}, &tickers{}, "USDT").
		Summarize(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Zero(t, s.Trades)
	require.Empty(t, s.Open)
	require.Contains(t, s.Text("PnL"), "— Realized: 0.00 USDT | ΣR 0.00 (0 trades, 0 wins)")
}
