package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/connectors"
	"spotexecutor/src/reporting"
)

type Summarizer interface {
	Summarize(ctx context.Context, from, to time.Time) (*reporting.Summary, error)
}

// DailyPnL sends the PnL summary of the last 24 hours on a cron schedule.
type DailyPnL struct {
	reporter Summarizer
	notifier connectors.Notifier
	now      func() time.Time
}

func NewDailyPnL(reporter Summarizer, notifier connectors.Notifier) *DailyPnL {
	return &DailyPnL{reporter: reporter, notifier: notifier, now: time.Now}
}

// Send summarizes trades closed in the 24 hours before now plus every open
// position, and delivers the text.
func (d *DailyPnL) Send(ctx context.Context) error {
	to := d.now().UTC()
	s, err := d.reporter.Summarize(ctx, to.Add(-24*time.Hour), to)
	if err != nil {
		return fmt.Errorf("daily summary: %w", err)
	}
	return d.notifier.SendText(ctx, s.Text("Daily PnL & R summary"))
}

// StartScheduler registers the daily summary and blocks until ctx is done.
func (d *DailyPnL) StartScheduler(ctx context.Context, cfg Config) error {
	loc, err := time.LoadLocation(cfg.DailyPnLTZ)
	if err != nil {
		return fmt.Errorf("daily pnl timezone %q: %w", cfg.DailyPnLTZ, err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.DailyPnLCron, func() {
		if err := d.Send(ctx); err != nil {
			logger.WithField("component", "executor").WithError(err).Error("daily pnl summary failed")
		}
	})
	if err != nil {
		return fmt.Errorf("daily pnl schedule %q: %w", cfg.DailyPnLCron, err)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"component": "executor",
		"spec":      cfg.DailyPnLCron,
		"tz":        cfg.DailyPnLTZ,
	}).Info("daily pnl scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("daily pnl scheduler stopped")
	return nil
}
