// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TicksTotal      prometheus.Counter
	TicksSkipped    prometheus.Counter
	PollFailures    prometheus.Counter
	PresenceUpdates prometheus.Counter

	// Labelled counters
	MessageActions   *prometheus.CounterVec // action=create|edit|delete|dedupe
	RoleActions      *prometheus.CounterVec // action=grant|revoke
	PermissionErrors *prometheus.CounterVec // op=send|edit|delete|history|grant|revoke

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	LiveStreamersGauge prometheus.Gauge
	ActiveGuildsGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "livewatch_ticks_total", Help: "Number of reconciliation ticks run"})
		TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "livewatch_ticks_skipped_total", Help: "Ticks skipped because the previous tick was still running"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livewatch_poll_failures_total", Help: "Helix stream batches that failed"})
		PresenceUpdates = promauto.NewCounter(prometheus.CounterOpts{Name: "livewatch_presence_updates_total", Help: "Presence events handled by the incremental updater"})
		MessageActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_message_actions_total", Help: "Live message mutations issued"}, []string{"action"})
		RoleActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_role_actions_total", Help: "Live role mutations issued"}, []string{"action"})
		PermissionErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_permission_errors_total", Help: "Chat mutations rejected for missing permissions"}, []string{"op"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livewatch_tick_duration_seconds", Help: "Reconciliation tick duration seconds", Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60}})
		LiveStreamersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livewatch_live_streamers", Help: "Streamers currently in the global live registry"})
		ActiveGuildsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livewatch_active_guilds", Help: "Guilds with an output channel configured"})
	})
}

// IncMessageAction counts one message mutation.
func IncMessageAction(action string) {
	if MessageActions != nil {
		MessageActions.WithLabelValues(action).Inc()
	}
}

// IncRoleAction counts one role mutation.
func IncRoleAction(action string) {
	if RoleActions != nil {
		RoleActions.WithLabelValues(action).Inc()
	}
}

// IncPermissionError counts one forbidden chat mutation.
func IncPermissionError(op string) {
	if PermissionErrors != nil {
		PermissionErrors.WithLabelValues(op).Inc()
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func IncTick()           { inc(TicksTotal) }
func IncTickSkipped()    { inc(TicksSkipped) }
func IncPollFailure()    { inc(PollFailures) }
func IncPresenceUpdate() { inc(PresenceUpdates) }

// SetLiveStreamers records the registry size.
func SetLiveStreamers(n int) {
	if LiveStreamersGauge != nil {
		LiveStreamersGauge.Set(float64(n))
	}
}

// SetActiveGuilds records how many guilds took part in the last tick.
func SetActiveGuilds(n int) {
	if ActiveGuildsGauge != nil {
		ActiveGuildsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
