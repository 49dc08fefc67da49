package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/telemetry"
)

// TickReport summarizes one tick.
type TickReport struct {
	CorrelationID string        `json:"correlation_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
	MemberScan    bool          `json:"member_scan"`
	PollFailed    bool          `json:"poll_failed"`
	Guilds        int           `json:"guilds"`
	Live          int           `json:"live"`
	Err           string        `json:"error,omitempty"`
}

// loadConfigs returns every readable guild config. listed holds all known ids
// so state is only dropped for guilds that are really gone or inactive.
func (r *Reconciler) loadConfigs(ctx context.Context, log *slog.Logger) (cfgs []guild.Config, listed map[string]bool, err error) {
	ids, err := r.store.ListIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list guilds: %w", err)
	}
	listed = make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
		cfg, err := r.store.Get(ctx, id)
		if err != nil {
			log.Warn("failed to load guild config", slog.String("guild", id), slog.Any("err", err))
			continue
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, listed, nil
}

// Tick runs one full reconciliation pass: member scan (every few ticks),
// Helix poll, projection, enrichment, then role and message reconciliation.
// Callers must not run two ticks at once; see Scheduler.
func (r *Reconciler) Tick(ctx context.Context) TickReport {
	corr := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, corr)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "live.tick")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx)
	telemetry.IncTick()

	start := time.Now()
	rep := TickReport{CorrelationID: corr, StartedAt: r.now()}
	defer func() {
		rep.Duration = time.Since(start)
		if telemetry.TickDuration != nil {
			telemetry.TickDuration.Observe(rep.Duration.Seconds())
		}
		r.mu.Lock()
		r.lastReport = &rep
		r.mu.Unlock()
	}()

	cfgs, listed, err := r.loadConfigs(ctx, log)
	if err != nil {
		log.Error("tick aborted", slog.Any("err", err))
		telemetry.RecordError(span, err)
		rep.Err = err.Error()
		return rep
	}
	active := make([]guild.Config, 0, len(cfgs))
	inactive := make(map[string]bool)
	for _, cfg := range cfgs {
		if cfg.Active() {
			active = append(active, cfg)
		} else {
			inactive[cfg.ID] = true
		}
	}
	rep.Guilds = len(active)
	telemetry.SetActiveGuilds(len(active))

	r.mu.Lock()
	scan := r.ticks%r.scanEvery == 0
	r.ticks++
	r.mu.Unlock()
	rep.MemberScan = scan

	evidence := make(map[string]*Evidence, len(active))
	if scan {
		for _, cfg := range active {
			members, err := r.chat.GuildMembers(ctx, cfg.ID)
			if err != nil {
				chatError(log, cfg, "members", err)
				continue
			}
			ev := CollectEvidence(cfg, members)
			evidence[cfg.ID] = &ev
		}
	}

	valid := make(map[Key]struct{})
	r.mu.Lock()
	for _, cfg := range active {
		if ev := evidence[cfg.ID]; ev != nil {
			for k, e := range ev.ByKey {
				r.mergeMember(k, e)
				valid[k] = struct{}{}
			}
		}
	}
	r.mu.Unlock()

	pollFailed := r.pollStreams(ctx, active, valid, log)
	rep.PollFailed = pollFailed

	states := make(map[string]*groupState, len(active))
	r.mu.Lock()
	for _, cfg := range active {
		gs := r.group(cfg.ID, cfg.ChannelID)
		states[cfg.ID] = gs
		r.project(cfg, gs, evidence[cfg.ID], valid, pollFailed)
	}
	r.mu.Unlock()

	r.fetchAvatars(ctx, log)
	r.fetchBoxArt(ctx, log)

	for _, cfg := range active {
		gs := states[cfg.ID]
		gs.outMu.Lock()
		if ev := evidence[cfg.ID]; ev != nil {
			r.syncRoles(ctx, cfg, gs, *ev, log)
		}
		r.syncMessages(ctx, cfg, gs, scan, pollFailed, log)
		gs.outMu.Unlock()
	}

	r.mu.Lock()
	r.sweep(listed, inactive, valid, pollFailed)
	rep.Live = len(r.global)
	r.mu.Unlock()
	telemetry.SetLiveStreamers(rep.Live)

	span.SetAttributes(
		attribute.Int("guilds", rep.Guilds),
		attribute.Int("live", rep.Live),
		attribute.Bool("member_scan", scan),
		attribute.Bool("poll_failed", pollFailed),
	)
	if pollFailed {
		log.Warn("tick finished with poll failures; deletions suppressed", slog.Int("live", rep.Live))
	} else {
		telemetry.SetSpanSuccess(span)
		log.Debug("tick finished", slog.Int("guilds", rep.Guilds), slog.Int("live", rep.Live), slog.Bool("member_scan", scan))
	}
	return rep
}

// sweep drops state of guilds that are gone or inactive and, unless the poll
// failed, global records nobody confirmed or shows. Requires r.mu.
func (r *Reconciler) sweep(listed, inactive map[string]bool, valid map[Key]struct{}, pollFailed bool) {
	for id := range r.groups {
		if !listed[id] || inactive[id] {
			delete(r.groups, id)
		}
	}
	if pollFailed {
		return
	}
	for k := range r.global {
		if _, ok := valid[k]; ok {
			continue
		}
		if !r.referenced(k) {
			delete(r.global, k)
		}
	}
}
