package live

import (
	"context"
	"log/slog"
	"sort"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/telemetry"
)

const (
	reasonLive    = "Streaming Live"
	reasonNotLive = "Not Streaming Live"
)

// syncRoles grants the live role to streaming streamer members and revokes it
// from the others. Requires gs.outMu.
func (r *Reconciler) syncRoles(ctx context.Context, cfg guild.Config, gs *groupState, ev Evidence, log *slog.Logger) {
	if !cfg.HasLiveRole() {
		return
	}
	ids := make([]string, 0, len(ev.Streamers))
	for id := range ev.Streamers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := ev.Streamers[id]
		k, live := ev.Live[id]
		held := m.HasRole(cfg.LiveRoleID)
		switch {
		case live && !held:
			if r.grantRole(ctx, cfg, id, log) {
				r.trackLiveMember(gs, k, id)
			}
		case live:
			r.trackLiveMember(gs, k, id)
		case held:
			if r.revokeRole(ctx, cfg, id, log) {
				r.mu.Lock()
				gs.untrackMember(id)
				r.mu.Unlock()
			}
		default:
			r.mu.Lock()
			gs.untrackMember(id)
			r.mu.Unlock()
		}
	}
}

func (r *Reconciler) trackLiveMember(gs *groupState, k Key, memberID string) {
	if k == "" {
		return
	}
	r.mu.Lock()
	gs.liveMembers[k] = memberID
	r.mu.Unlock()
}

func (r *Reconciler) grantRole(ctx context.Context, cfg guild.Config, memberID string, log *slog.Logger) bool {
	if err := r.chat.AddRole(ctx, cfg.ID, memberID, cfg.LiveRoleID, reasonLive); err != nil {
		chatError(log, cfg, "grant", err, slog.String("role", cfg.LiveRoleID), slog.String("member", memberID))
		return false
	}
	telemetry.IncRoleAction("grant")
	return true
}

func (r *Reconciler) revokeRole(ctx context.Context, cfg guild.Config, memberID string, log *slog.Logger) bool {
	if err := r.chat.RemoveRole(ctx, cfg.ID, memberID, cfg.LiveRoleID, reasonNotLive); err != nil {
		chatError(log, cfg, "revoke", err, slog.String("role", cfg.LiveRoleID), slog.String("member", memberID))
		return false
	}
	telemetry.IncRoleAction("revoke")
	return true
}
