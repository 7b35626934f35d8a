package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/respond"
)

// Recover turns a handler panic into a logged 500 written through rs, so a
// crash still answers with the failure envelope. http.ErrAbortHandler is
// re-raised for net/http to handle.
func Recover(rs *respond.Responder, log logrus.FieldLogger) func(http.Handler) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "middleware.recover")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": chimw.GetReqID(r.Context()),
					"stack":      string(debug.Stack()),
				}).Errorf("panic: %v", rec)

				// A hijacked WebSocket connection has no response to write.
				if r.Header.Get("Connection") == "Upgrade" {
					return
				}
				rs.Error(w, r, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
