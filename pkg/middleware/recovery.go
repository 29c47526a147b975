package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
)

// RecoveryConfig holds recovery middleware configuration
type RecoveryConfig struct {
	Logger     Logger
	StackTrace bool
}

// Recovery creates panic recovery middleware. A panicking handler yields a
// 500 and a logged stack instead of a dead connection.
func Recovery(config *RecoveryConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = &RecoveryConfig{StackTrace: true}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if config.Logger != nil {
						fields := []interface{}{
							"error", err,
							"method", r.Method,
							"path", r.URL.Path,
							"request_id", GetRequestID(r.Context()),
						}
						if config.StackTrace {
							fields = append(fields, "stack", string(debug.Stack()))
						}
						config.Logger.Error("Panic recovered", fields...)
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error":      "internal server error",
						"request_id": GetRequestID(r.Context()),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
