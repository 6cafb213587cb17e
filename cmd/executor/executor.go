package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"spotexecutor/src/executors"
	"spotexecutor/src/handler"
	"spotexecutor/src/security"
	"spotexecutor/src/server"
)

type Executor struct{}

func (t *Executor) Start() error {
	config := GetConfig()
	loopCfg := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	app, err := Build()
	if err != nil {
		logrus.WithError(err).Error("Failed to build executor")
		return err
	}

	settings, err := app.Commands.Settings(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load account settings")
		return err
	}
	logrus.WithFields(map[string]interface{}{
		"mode":      settings.Mode,
		"watchlist": settings.Watchlist,
		"paused":    settings.Paused,
		"period":    loopCfg.LoopPeriod.String(),
	}).Info("Starting spot executor")

	loop := executors.NewLoop(loopCfg, app.Manager, app.Commands, app.State)
	daily := executors.NewDailyPnL(app.Reporter, app.Notifier)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.StartLoop(gctx) })
	g.Go(func() error { return daily.StartScheduler(gctx, loopCfg) })
	if config.RunServer {
		router := server.NewRouter(handler.CommandRoutes(app.Commands), security.GetConfig().OperatorToken)
		g.Go(func() error { return server.StartServer(gctx, server.GetConfig().Port, router) })
	}

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("Executor stopped with error")
		return err
	}
	return nil
}
