package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"spotexecutor/src/model"
)

var quoteSuffixes = []string{"USDT", "USDC", "BTC", "ETH"}

// NormalizeSymbol turns operator input into an OKX spot instrument id.
// Examples:
//
//	ethusdt   -> ETH-USDT
//	BTC/USDT  -> BTC-USDT
//	sol-usdc  -> SOL-USDC
//	ETH       -> ETH-USDT
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	s = strings.NewReplacer("/", "-", "_", "-").Replace(s)
	if strings.Contains(s, "-") {
		return s
	}
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q) + "-" + q
		}
	}
	return s + "-USDT"
}

// newClientID returns a 32 character alphanumeric id, the longest OKX accepts.
func newClientID(prefix string) string {
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > 32 {
		id = id[:32]
	}
	return id
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo ExceptionStore,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}
	if s, ok := contextData["symbol"].(string); ok {
		exc.Symbol = s
	}
	if id, ok := contextData["position_id"].(string); ok {
		exc.PositionID = id
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	// Persist in database
	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
