package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonbook/salonapi/internal/respond"
)

func TestRecover(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	h := Recover(respond.New(true, logger), logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	out := body(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "internal server error", out["message"])

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "panic: nil map write" {
			logged = true
			assert.NotEmpty(t, e.Data["stack"])
		}
	}
	assert.True(t, logged, "panic should be logged with its stack")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	h := Recover(respond.New(false, nil), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
