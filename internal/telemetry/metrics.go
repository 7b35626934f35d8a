package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrDBOperation    = "db.operation"
	AttrAuthOutcome    = "auth.outcome"
	AttrAuthSuccess    = "auth.success"
	AttrAuthGate       = "auth.gate"
)

var (
	latencyBucketsHTTP = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	latencyBucketsDB   = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000}
	latencyBucketsAuth = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// instruments creates instruments on one meter and keeps the first error, so
// constructors can declare everything and check once.
type instruments struct {
	meter metric.Meter
	err   error
}

func newInstruments(scope string) *instruments {
	return &instruments{meter: otel.Meter(scope)}
}

func (b *instruments) counter(name, unit, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) gauge(name, unit, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithUnit(unit), metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return g
}

func (b *instruments) latency(name, desc string, buckets []float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithUnit("ms"),
		metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.err = errors.Join(b.err, err)
	return h
}

// ServerMetrics instruments the HTTP layer. It is created once at startup and
// handed to the router's metrics middleware.
type ServerMetrics struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	latency  metric.Float64Histogram
}

func NewServerMetrics() (*ServerMetrics, error) {
	b := newInstruments("salonapi/http")
	m := &ServerMetrics{
		requests: b.counter("http.server.request.count", "{request}", "HTTP requests served"),
		errors:   b.counter("http.server.error.count", "{error}", "HTTP responses with a 5xx status"),
		inFlight: b.gauge("http.server.in_flight", "{request}", "HTTP requests being served"),
		latency:  b.latency("http.server.request.duration", "HTTP request latency", latencyBucketsHTTP),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordRequest records one finished request. route is the chi route pattern,
// not the raw path.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route string, status int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, durationMs, attrs)
	if status >= 500 {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *ServerMetrics) RequestStarted(ctx context.Context) {
	if m != nil {
		m.inFlight.Add(ctx, 1)
	}
}

func (m *ServerMetrics) RequestFinished(ctx context.Context) {
	if m != nil {
		m.inFlight.Add(ctx, -1)
	}
}

// DatabaseMetrics is fed by the bun query hook.
type DatabaseMetrics struct {
	queries metric.Int64Counter
	errors  metric.Int64Counter
	latency metric.Float64Histogram
}

func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	b := newInstruments("salonapi/database")
	m := &DatabaseMetrics{
		queries: b.counter("db.query.count", "{query}", "Database queries executed"),
		errors:  b.counter("db.query.error.count", "{error}", "Database queries that failed"),
		latency: b.latency("db.query.duration", "Database query latency", latencyBucketsDB),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordQuery records one statement; operation is the SQL verb.
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, operation string, durationMs float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrDBOperation, operation))
	m.queries.Add(ctx, 1, attrs)
	m.latency.Record(ctx, durationMs, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// AuthMetrics counts login outcomes, lockouts, guest sessions and gate
// denials. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	logins   metric.Int64Counter
	lockouts metric.Int64Counter
	guests   metric.Int64Counter
	denials  metric.Int64Counter
	resolve  metric.Float64Histogram
}

func NewAuthMetrics() (*AuthMetrics, error) {
	b := newInstruments("salonapi/auth")
	m := &AuthMetrics{
		logins:   b.counter("auth.login.count", "{attempt}", "Login attempts by outcome"),
		lockouts: b.counter("auth.lockout.count", "{lockout}", "Accounts locked after repeated failed logins"),
		guests:   b.counter("auth.guest_session.count", "{session}", "Guest sessions issued"),
		denials:  b.counter("auth.authz_denial.count", "{denial}", "Requests rejected by a permission, role or guest gate"),
		resolve:  b.latency("auth.duration", "Principal resolution latency", latencyBucketsAuth),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordLogin counts a login attempt. outcome is one of success, failure,
// locked or unverified.
func (a *AuthMetrics) RecordLogin(ctx context.Context, outcome string) {
	if a == nil {
		return
	}
	a.logins.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAuthOutcome, outcome)))
}

func (a *AuthMetrics) RecordLockout(ctx context.Context) {
	if a == nil {
		return
	}
	a.lockouts.Add(ctx, 1)
}

func (a *AuthMetrics) RecordGuestSession(ctx context.Context) {
	if a == nil {
		return
	}
	a.guests.Add(ctx, 1)
}

// RecordDenial counts a gate rejection; gate is permission, role or guest.
func (a *AuthMetrics) RecordDenial(ctx context.Context, gate string) {
	if a == nil {
		return
	}
	a.denials.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAuthGate, gate)))
}

func (a *AuthMetrics) RecordAuthentication(ctx context.Context, kind string, success bool, durationMs float64) {
	if a == nil {
		return
	}
	a.resolve.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrPrincipalKind, kind),
		attribute.Bool(AttrAuthSuccess, success),
	))
}
