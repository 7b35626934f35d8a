package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// QueryHook feeds every bun query into DatabaseMetrics.
type QueryHook struct {
	metrics *DatabaseMetrics
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a bun.QueryHook recording into m. Register it with
// db.AddQueryHook.
func NewQueryHook(m *DatabaseMetrics) *QueryHook {
	return &QueryHook{metrics: m}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if h.metrics == nil {
		return
	}
	elapsed := float64(time.Since(event.StartTime)) / float64(time.Millisecond)
	h.metrics.RecordQuery(ctx, event.Operation(), elapsed, event.Err)
}
