package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
)

type contextKey string

const OperatorKey contextKey = "operator"

// GetOperatorFromContext returns the operator name set by RequireToken.
func GetOperatorFromContext(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(OperatorKey).(string)
	return op, ok
}

// RequireToken rejects requests without the operator bearer token. An empty
// token rejects everything.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.WithFields(map[string]interface{}{
					"component": "auth",
					"path":      r.URL.Path,
				}).Warn("operator request rejected")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			operator := r.Header.Get("X-Operator")
			if operator == "" {
				operator = "operator"
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OperatorKey, operator)))
		})
	}
}
