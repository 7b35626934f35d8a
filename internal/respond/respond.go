// Package respond writes the JSON envelopes shared by handlers and
// middleware. It is the only place IAM error kinds become HTTP statuses.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/services/iam"
)

var kindStatus = map[iam.ErrorKind]int{
	iam.KindUnauthenticated:  http.StatusUnauthorized,
	iam.KindEmailNotVerified: http.StatusForbidden,
	iam.KindForbidden:        http.StatusForbidden,
	iam.KindNotFound:         http.StatusNotFound,
	iam.KindConflict:         http.StatusConflict,
	iam.KindValidation:       http.StatusBadRequest,
	iam.KindInvalidToken:     http.StatusBadRequest,
	iam.KindTokenExpired:     http.StatusBadRequest,
	iam.KindRateLimited:      http.StatusTooManyRequests,
}

// StatusFor returns the HTTP status for an IAM error kind, or 500 for kinds
// it does not know.
func StatusFor(kind iam.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Responder writes success and error envelopes.
type Responder struct {
	production bool
	log        logrus.FieldLogger
}

// New creates a Responder. In production, 500 responses carry a generic
// message only.
func New(production bool, log logrus.FieldLogger) *Responder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Responder{production: production, log: log}
}

// JSON writes {"success":true,"data":data}.
func (rs *Responder) JSON(w http.ResponseWriter, status int, data any) {
	rs.write(w, status, map[string]any{"success": true, "data": data})
}

// Message writes {"success":true,"message":message}.
func (rs *Responder) Message(w http.ResponseWriter, status int, message string) {
	rs.write(w, status, map[string]any{"success": true, "message": message})
}

// Error maps err onto a status code and writes the failure envelope.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := iam.AsError(err)
	if !ok {
		rs.internal(w, r, err)
		return
	}

	status := StatusFor(e.Kind)
	if status == http.StatusInternalServerError {
		rs.internal(w, r, err)
		return
	}

	body := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		body[k] = v
	}
	body["success"] = false
	body["message"] = e.Message
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Kind == iam.KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSeconds()))
	}
	rs.write(w, status, body)
}

// Fail writes a failure envelope that does not originate from the IAM
// service, such as a malformed request body.
func (rs *Responder) Fail(w http.ResponseWriter, status int, message string) {
	rs.write(w, status, map[string]any{"success": false, "message": message})
}

func (rs *Responder) internal(w http.ResponseWriter, r *http.Request, err error) {
	fields := logrus.Fields{}
	if r != nil {
		fields["method"] = r.Method
		fields["path"] = r.URL.Path
		if id := middleware.GetReqID(r.Context()); id != "" {
			fields["request_id"] = id
		}
	}
	rs.log.WithFields(fields).WithError(err).Error("request failed")

	message := "internal server error"
	if !rs.production && err != nil {
		message = "internal server error: " + err.Error()
	}
	rs.write(w, http.StatusInternalServerError, map[string]any{"success": false, "message": message})
}

func (rs *Responder) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rs.log.WithError(err).Warn("encode response")
	}
}
