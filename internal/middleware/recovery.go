package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/httputil"
	"github.com/coach-dss/coach/internal/logging"
)

// RecoveryMiddleware turns a panicking handler into a 500 response.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithContext(r.Context()).WithFields(map[string]interface{}{
						"panic": fmt.Sprint(rec),
						"stack": string(debug.Stack()),
						"path":  r.URL.Path,
					}).Error("handler panicked")
					httputil.WriteServiceError(w, r, errors.Internal("internal error", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
