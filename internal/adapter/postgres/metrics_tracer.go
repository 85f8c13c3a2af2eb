package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
)

// MetricsTracer records query durations and failures per statement verb.
type MetricsTracer struct {
	metrics *metrics.StoreMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func NewMetricsTracer(m *metrics.StoreMetrics) *MetricsTracer {
	return &MetricsTracer{metrics: m}
}

// Option adjusts the pool configuration before the pool is created.
type Option func(*pgxpool.Config)

// WithMetrics installs a MetricsTracer on every pooled connection.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.Tracer = NewMetricsTracer(m)
	}
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: extractQueryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}
	t.metrics.Observe("postgres", qctx.queryName, time.Since(qctx.startTime).Seconds(), data.Err != nil)
}

// extractQueryName reduces a statement to its leading verb to keep label cardinality low.
func extractQueryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	verb := strings.ToUpper(fields[0])
	if len(verb) > 20 {
		return verb[:20]
	}
	return verb
}
