package main

import (
	"fmt"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"spotexecutor/cmd/executor"
	"spotexecutor/cmd/report"
	"spotexecutor/src/database"
)

var Version string

func SetupLogger() {
	config := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(config.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Spot executor CMD"
	app.Usage = "Autonomous spot position executor for OKX"
	app.Version = Version

	app.Commands = []cli.Command{
		executorCMD,
		pnlCMD,
		statusCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var notifyFlag = cli.BoolFlag{
	Name:  "notify",
	Usage: "also send the text to the configured notifier",
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the evaluation loop, the daily PnL summary and the HTTP server`,
	}
	pnlCMD = cli.Command{
		Name:        "pnl",
		Usage:       "print the PnL & R summary",
		Action:      pnlAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{notifyFlag},
		Description: `Print realized and open PnL and R`,
	}
	statusCMD = cli.Command{
		Name:        "status",
		Usage:       "print settings and open positions",
		Action:      statusAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{notifyFlag},
		Description: `Print account settings and open positions`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")

	executorStrategy := &executor.Executor{}
	err := executorStrategy.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func pnlAction(c *cli.Context) error {
	r := &report.Report{Out: os.Stdout, Notify: c.Bool("notify")}
	if err := r.PnL(); err != nil {
		logrus.WithError(err).Error("pnl cmd")
		return err
	}
	return nil
}

func statusAction(c *cli.Context) error {
	r := &report.Report{Out: os.Stdout, Notify: c.Bool("notify")}
	if err := r.Status(); err != nil {
		logrus.WithError(err).Error("status cmd")
		return err
	}
	return nil
}
