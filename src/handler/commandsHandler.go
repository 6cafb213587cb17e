package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/auth"
	"spotexecutor/src/commands"
	"spotexecutor/src/controller"
	"spotexecutor/src/model"
	"spotexecutor/src/reporting"
	"spotexecutor/src/risk"
)

type commandService interface {
	Settings(ctx context.Context) (model.AccountSettings, error)
	AddSymbol(ctx context.Context, raw string) ([]string, error)
	RemoveSymbol(ctx context.Context, raw string) ([]string, error)
	SetMode(ctx context.Context, raw string) (model.Mode, error)
	SetRisk(ctx context.Context, raw string) (decimal.Decimal, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetAutoDip(ctx context.Context, raw string) (bool, error)
	SetAutoBreakout(ctx context.Context, raw string) (bool, error)
	CreateAlert(ctx context.Context, symbol, kind, price string) (*model.Alert, error)
	RemoveAlert(ctx context.Context, id string) error
	ClearAlerts(ctx context.Context, symbol string) (int64, error)
	ListAlerts(ctx context.Context) ([]model.Alert, error)
	Close(ctx context.Context, target string) ([]string, error)
	PnL(ctx context.Context) (*reporting.Summary, error)
	Status(ctx context.Context) (*commands.Status, error)
}

var _ commandService = (*commands.Service)(nil)

// CommandRoutes mounts one endpoint per operator command.
func CommandRoutes(svc commandService) http.Handler {
	r := chi.NewRouter()

	r.Get("/status", StatusHandler(svc))
	r.Get("/pnl", PnLHandler(svc))

	r.Get("/watchlist", func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Settings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"watchlist": s.Watchlist})
	})
	r.Post("/watchlist", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Symbol string `json:"symbol"`
		}
		if !decode(w, r, &p) {
			return
		}
		list, err := svc.AddSymbol(r.Context(), p.Symbol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"watchlist": list})
	})
	r.Delete("/watchlist/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.RemoveSymbol(r.Context(), chi.URLParam(r, "symbol"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"watchlist": list})
	})

	r.Put("/mode", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Mode string `json:"mode"`
		}
		if !decode(w, r, &p) {
			return
		}
		mode, err := svc.SetMode(r.Context(), p.Mode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"mode": mode})
	})
	r.Put("/risk", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Risk string `json:"risk"`
		}
		if !decode(w, r, &p) {
			return
		}
		fraction, err := svc.SetRisk(r.Context(), p.Risk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"risk": fraction.String()})
	})

	r.Post("/pause", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Pause(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
	})
	r.Post("/resume", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Resume(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
	})
	r.Put("/auto/{kind}", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Enabled string `json:"enabled"`
		}
		if !decode(w, r, &p) {
			return
		}
		var (
			on  bool
			err error
		)
		switch kind := chi.URLParam(r, "kind"); kind {
		case "dip":
			on, err = svc.SetAutoDip(r.Context(), p.Enabled)
		case "breakout":
			on, err = svc.SetAutoBreakout(r.Context(), p.Enabled)
		default:
			http.Error(w, "unknown auto kind "+kind, http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": on})
	})

	r.Get("/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := svc.ListAlerts(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	})
	r.Post("/alerts", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Symbol string `json:"symbol"`
			Kind   string `json:"kind"`
			Price  string `json:"price"`
		}
		if !decode(w, r, &p) {
			return
		}
		a, err := svc.CreateAlert(r.Context(), p.Symbol, p.Kind, p.Price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	})
	r.Delete("/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/symbols/{symbol}/alerts", func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.ClearAlerts(r.Context(), chi.URLParam(r, "symbol"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"removed": n})
	})

	r.Post("/close", func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Target string `json:"target"`
		}
		if !decode(w, r, &p) {
			return
		}
		operator, _ := auth.GetOperatorFromContext(r.Context())
		logger.WithFields(map[string]interface{}{
			"component": "handler",
			"operator":  operator,
			"target":    p.Target,
		}).Info("operator close requested")

		ids, err := svc.Close(r.Context(), p.Target)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"closed": ids})
	})

	return r
}

// StatusHandler returns the account settings and open positions, as JSON or
// as the notifier text when format=text.
func StatusHandler(svc commandService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if r.URL.Query().Get("format") == "text" {
			writeText(w, st.Text())
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func PnLHandler(svc commandService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.PnL(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if r.URL.Query().Get("format") == "text" {
			writeText(w, s.Text("PnL & R summary"))
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		logger.WithError(err).WithField("path", r.URL.Path).Warn("invalid command payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload: " + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, commands.ErrInvalidArgument),
		errors.Is(err, commands.ErrUnknownSymbol),
		errors.Is(err, risk.ErrRiskOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, commands.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrPositionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	entry := logger.WithError(err).WithField("path", r.URL.Path)
	if code == http.StatusInternalServerError {
		entry.Error("command failed")
	} else {
		entry.Info("command rejected")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(text)); err != nil {
		logger.WithError(err).Error("failed to write response")
	}
}
