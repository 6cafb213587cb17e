package report

import (
	"context"
	"fmt"
	"io"

	"spotexecutor/cmd/executor"
)

// Report prints a one-shot summary and optionally sends it to the notifier.
type Report struct {
	Out    io.Writer
	Notify bool
}

func (r *Report) PnL() error {
	app, err := executor.Build()
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := app.Commands.PnL(ctx)
	if err != nil {
		return err
	}
	return r.emit(ctx, app, s.Text("PnL & R summary"))
}

func (r *Report) Status() error {
	app, err := executor.Build()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := app.Commands.Status(ctx)
	if err != nil {
		return err
	}
	return r.emit(ctx, app, st.Text())
}

func (r *Report) emit(ctx context.Context, app *executor.App, text string) error {
	if _, err := fmt.Fprintln(r.Out, text); err != nil {
		return err
	}
	if r.Notify {
		return app.Notifier.SendText(ctx, text)
	}
	return nil
}
