// Package reporting summarizes realized and open PnL and R across the trade
// audit trail and the positions still being tracked.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/model"
)

type TradeSource interface {
	FindClosedBetween(ctx context.Context, from, to time.Time) ([]model.Trade, error)
}

type PositionSource interface {
	FindOpen(ctx context.Context) ([]model.Position, error)
}

type PriceSource interface {
	GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OpenLine is the mark-to-market view of one filled open position.
type OpenLine struct {
	PositionID string          `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Origin     model.Origin    `json:"origin"`
	Size       decimal.Decimal `json:"size"`
	Entry      decimal.Decimal `json:"entry"`
	Last       decimal.Decimal `json:"last"`
	PnL        decimal.Decimal `json:"pnl"`
	R          decimal.Decimal `json:"r"`
	// Stale is set when no price was available; the line is left out of the totals.
	Stale bool `json:"stale,omitempty"`
}

type Summary struct {
	From        time.Time       `json:"from,omitempty"`
	To          time.Time       `json:"to,omitempty"`
	Quote       string          `json:"quote"`
	Trades      int             `json:"trades"`
	Wins        int             `json:"wins"`
	Realized    decimal.Decimal `json:"realized"`
	RealizedR   decimal.Decimal `json:"realized_r"`
	Unrealized  decimal.Decimal `json:"unrealized"`
	UnrealizedR decimal.Decimal `json:"unrealized_r"`
	Open        []OpenLine      `json:"open"`
}

type Aggregator struct {
	trades    TradeSource
	positions PositionSource
	prices    PriceSource
	quote     string
}

func NewAggregator(trades TradeSource, positions PositionSource, prices PriceSource, quote string) *Aggregator {
	return &Aggregator{trades: trades, positions: positions, prices: prices, quote: quote}
}

// Summarize totals the trades closed in [from, to) and marks every filled
// open position to the last price. Zero bounds are open.
func (a *Aggregator) Summarize(ctx context.Context, from, to time.Time) (*Summary, error) {
	trades, err := a.trades.FindClosedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	open, err := a.positions.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}

	s := &Summary{
		From:        from,
		To:          to,
		Quote:       a.quote,
		Realized:    decimal.Zero,
		RealizedR:   decimal.Zero,
		Unrealized:  decimal.Zero,
		UnrealizedR: decimal.Zero,
	}
	for _, t := range trades {
		s.Trades++
		if t.RealizedPnL.IsPositive() {
			s.Wins++
		}
		s.Realized = s.Realized.Add(t.RealizedPnL)
		s.RealizedR = s.RealizedR.Add(t.RMultiple)
	}

	prices := map[string]decimal.Decimal{}
	for _, p := range open {
		if !p.HasFill() {
			continue
		}
		line := OpenLine{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Origin:     p.Origin,
			Size:       p.FilledSize,
			Entry:      p.EntryPrice,
		}
		last, ok := prices[p.Symbol]
		if !ok {
			last, err = a.prices.GetTicker(ctx, p.Symbol)
			if err != nil || !last.IsPositive() {
				logger.WithFields(map[string]interface{}{
					"component": "reporting",
					"symbol":    p.Symbol,
				}).WithError(err).Warn("no price for open position")
				last = decimal.Zero
			}
			prices[p.Symbol] = last
		}
		if !last.IsPositive() {
			line.Stale = true
			s.Open = append(s.Open, line)
			continue
		}

		line.Last = last
		line.PnL, line.R = Unrealized(p, last)
		s.Unrealized = s.Unrealized.Add(line.PnL)
		s.UnrealizedR = s.UnrealizedR.Add(line.R)
		s.Open = append(s.Open, line)
	}
	return s, nil
}

// Unrealized returns the open PnL of a filled long position at last and its
// R-multiple against the stop set at entry. R is zero when the risk is zero.
func Unrealized(p model.Position, last decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pnl := last.Sub(p.EntryPrice).Mul(p.FilledSize)
	risk := p.FilledSize.Mul(p.EntryPrice.Sub(p.InitialStop).Abs())
	if !risk.IsPositive() {
		return pnl, decimal.Zero
	}
	return pnl, pnl.DivRound(risk, 8)
}

// Text renders the summary for the notifier.
func (s *Summary) Text(title string) string {
	var b strings.Builder
	b.WriteString("📊 " + title + "\n")
	for _, l := range s.Open {
		if l.Stale {
			fmt.Fprintf(&b, "• %s %s open: size %s entry %s, no price\n", l.Symbol, l.Origin, l.Size, l.Entry)
			continue
		}
		fmt.Fprintf(&b, "• %s %s open: PnL %s %s | R %s\n",
			l.Symbol, l.Origin, l.PnL.StringFixed(2), s.Quote, l.R.StringFixed(2))
	}
	fmt.Fprintf(&b, "— Realized: %s %s | ΣR %s (%d trades, %d wins)\n",
		s.Realized.StringFixed(2), s.Quote, s.RealizedR.StringFixed(2), s.Trades, s.Wins)
	fmt.Fprintf(&b, "— Unrealized: %s %s | ΣR %s",
		s.Unrealized.StringFixed(2), s.Quote, s.UnrealizedR.StringFixed(2))
	return b.String()
}
