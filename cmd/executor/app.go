package executor

import (
	"spotexecutor/src/commands"
	"spotexecutor/src/connectors"
	"spotexecutor/src/controller"
	"spotexecutor/src/database"
	"spotexecutor/src/reporting"
	"spotexecutor/src/repository"
	"spotexecutor/src/risk"
	"spotexecutor/src/signal"
)

// App holds the wired components shared by the executor and the one-shot
// report commands.
type App struct {
	Client   *connectors.Client
	Notifier connectors.Notifier
	State    *repository.StateRepository
	Manager  *controller.Manager
	Reporter *reporting.Aggregator
	Commands *commands.Service
}

// Build connects the main database and wires every component from the environment.
func Build() (*App, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, err
	}

	connCfg := connectors.GetConfig()
	client := connectors.NewClient(connCfg)
	notifier := connectors.NewTelegramNotifier(connCfg)

	state := repository.NewStateRepository()
	alerts := repository.NewAlertRepository()
	calc := risk.NewCalculator(risk.GetConfig())

	manager := controller.NewManager(controller.GetConfig(), controller.Deps{
		Exchange:   client,
		Notifier:   notifier,
		State:      state,
		Alerts:     alerts,
		Exceptions: repository.NewExceptionRepository(),
		Engine:     signal.NewEngine(signal.GetConfig()),
		Risk:       calc,
	})

	reporter := reporting.NewAggregator(repository.NewTradeRepository(), state, client, connCfg.QuoteCcy)

	cmdCfg := commands.GetConfig()
	svc := commands.NewService(cmdCfg.DefaultSettings(), commands.Deps{
		Settings:    repository.NewSettingsRepository(),
		Alerts:      alerts,
		Positions:   state,
		Closer:      manager,
		Reporter:    reporter,
		Instruments: manager.Normalizer(),
		Risk:        calc,
	})

	return &App{
		Client:   client,
		Notifier: notifier,
		State:    state,
		Manager:  manager,
		Reporter: reporter,
		Commands: svc,
	}, nil
}
