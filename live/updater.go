package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livewatch/telemetry"
)

// HandlePresence reconciles a single member of one guild after a presence
// change, between ticks. It never polls Helix and never touches other guilds.
func (r *Reconciler) HandlePresence(ctx context.Context, guildID string, m Member) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, tracerName, "live.presence",
		attribute.String("guild", guildID), attribute.String("member", m.ID))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx)
	telemetry.IncPresenceUpdate()

	cfg, err := r.store.Get(ctx, guildID)
	if err != nil {
		log.Warn("failed to load guild config", slog.String("guild", guildID), slog.Any("err", err))
		telemetry.RecordError(span, err)
		return
	}
	if !cfg.Active() || m.HasAnyRole(cfg.MutedRoles) {
		return
	}
	obs := observe(cfg, m)

	r.mu.Lock()
	gs := r.group(cfg.ID, cfg.ChannelID)
	r.mu.Unlock()

	gs.outMu.Lock()
	defer gs.outMu.Unlock()

	if obs.live {
		var out Outgoing
		render := false
		r.mu.Lock()
		if obs.key != "" {
			r.mergeMember(obs.key, obs.evidence)
			rec := gs.records[obs.key]
			if rec == nil {
				rec = &GroupRecord{}
				gs.records[obs.key] = rec
			}
			rec.DisplayName = m.DisplayName
			rec.Avatar = m.AvatarURL
			rec.MemberID = m.ID
			rec.HasStreamerRole = true
			out = r.render(cfg, obs.key, rec, r.global[obs.key])
			render = true
		}
		r.mu.Unlock()

		if cfg.HasLiveRole() && !m.HasRole(cfg.LiveRoleID) {
			if r.grantRole(ctx, cfg, m.ID, log) {
				r.trackLiveMember(gs, obs.key, m.ID)
			}
		} else if cfg.HasLiveRole() {
			r.trackLiveMember(gs, obs.key, m.ID)
		}
		if render {
			r.mu.Lock()
			discovered := gs.discovered
			r.mu.Unlock()
			if !discovered {
				_ = r.discover(ctx, cfg, gs, log)
			}
			r.ensureMessage(ctx, cfg, gs, obs.key, out, log)
		}
		return
	}

	// Not live: drop what this member's role evidence put up, unless Helix
	// confirmed it independently.
	r.mu.Lock()
	tracked := false
	for _, id := range gs.liveMembers {
		if id == m.ID {
			tracked = true
			break
		}
	}
	stale := make(map[Key]RenderedMessage)
	var dropped []Key
	for k, rec := range gs.records {
		if rec.MemberID != m.ID || !rec.HasStreamerRole {
			continue
		}
		if g := r.global[k]; g != nil && g.FromAPI {
			continue
		}
		delete(gs.records, k)
		dropped = append(dropped, k)
		if !r.referenced(k) {
			delete(r.global, k)
		}
		if msg, ok := gs.messages[k]; ok {
			stale[k] = msg
		}
	}
	gs.untrackMember(m.ID)
	r.mu.Unlock()

	if cfg.HasLiveRole() && m.HasRole(cfg.LiveRoleID) && (obs.streamer || tracked || len(dropped) > 0) {
		r.revokeRole(ctx, cfg, m.ID, log)
	}
	for _, k := range sortedKeys(stale) {
		err := r.chat.DeleteMessage(ctx, cfg.ChannelID, stale[k].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			chatError(log, cfg, "delete", err, slog.String("channel", cfg.ChannelID), slog.String("streamer", string(k)))
			continue
		}
		if err == nil {
			telemetry.IncMessageAction("delete")
		}
		r.forget(gs, k, stale[k].ID)
	}
}
