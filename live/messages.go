package live

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/telemetry"
)

// chatError logs a failed chat call with enough context to fix permissions.
func chatError(log *slog.Logger, cfg guild.Config, op string, err error, args ...any) {
	args = append([]any{
		slog.String("op", op),
		slog.String("guild", cfg.ID),
		slog.String("guild_name", cfg.Name),
		slog.Any("err", err),
	}, args...)
	if errors.Is(err, ErrForbidden) {
		telemetry.IncPermissionError(op)
		log.Warn("missing discord permission", args...)
		return
	}
	log.Warn("discord call failed", args...)
}

// discover reads recent channel history for messages this bot rendered,
// tracking the first per key and deleting later duplicates. Requires gs.outMu.
func (r *Reconciler) discover(ctx context.Context, cfg guild.Config, gs *groupState, log *slog.Logger) error {
	history, err := r.chat.ChannelHistory(ctx, cfg.ChannelID, r.historyLimit)
	if err != nil {
		chatError(log, cfg, "history", err, slog.String("channel", cfg.ChannelID))
		return err
	}
	self := r.chat.SelfID()
	found := make(map[Key]RenderedMessage)
	var dups []string
	for _, m := range history {
		if m.AuthorID != self || len(m.Embeds) == 0 || m.Embeds[0].AuthorName == "" {
			continue
		}
		k := KeyOf(m.Embeds[0].AuthorName)
		if prev, ok := found[k]; ok {
			if prev.ID != m.ID {
				dups = append(dups, m.ID)
			}
			continue
		}
		found[k] = RenderedMessage{ID: m.ID, Content: m.Content, Title: m.Embeds[0].Title}
	}

	r.mu.Lock()
	for k, m := range found {
		if cur, ok := gs.messages[k]; ok && cur.ID != m.ID {
			dups = append(dups, m.ID)
			continue
		}
		gs.messages[k] = m
	}
	gs.discovered = true
	r.mu.Unlock()

	for _, id := range dups {
		err := r.chat.DeleteMessage(ctx, cfg.ChannelID, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			chatError(log, cfg, "delete", err, slog.String("channel", cfg.ChannelID), slog.String("message", id))
			continue
		}
		telemetry.IncMessageAction("dedupe")
	}
	return nil
}

// ensureMessage creates or edits the message for k so it matches out.
// Requires gs.outMu.
func (r *Reconciler) ensureMessage(ctx context.Context, cfg guild.Config, gs *groupState, k Key, out Outgoing, log *slog.Logger) {
	r.mu.Lock()
	cur, ok := gs.messages[k]
	r.mu.Unlock()

	if ok {
		if cur.Content == out.Content && cur.Title == out.Embed.Title {
			return
		}
		err := r.chat.EditMessage(ctx, cfg.ChannelID, cur.ID, out)
		switch {
		case err == nil:
			telemetry.IncMessageAction("edit")
			r.remember(gs, k, cur.ID, out)
			return
		case errors.Is(err, ErrNotFound):
			log.Info("live message vanished; re-creating", slog.String("guild", cfg.ID), slog.String("streamer", string(k)))
			r.forget(gs, k, cur.ID)
		default:
			chatError(log, cfg, "edit", err, slog.String("channel", cfg.ChannelID), slog.String("streamer", string(k)))
			return
		}
	}

	id, err := r.chat.SendMessage(ctx, cfg.ChannelID, out)
	if err != nil {
		chatError(log, cfg, "send", err, slog.String("channel", cfg.ChannelID), slog.String("streamer", string(k)))
		return
	}
	telemetry.IncMessageAction("create")
	r.remember(gs, k, id, out)
}

// retire deletes the message for k and revokes the live role tracked for it.
// Requires gs.outMu.
func (r *Reconciler) retire(ctx context.Context, cfg guild.Config, gs *groupState, k Key, msg RenderedMessage, log *slog.Logger) {
	err := r.chat.DeleteMessage(ctx, cfg.ChannelID, msg.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		chatError(log, cfg, "delete", err, slog.String("channel", cfg.ChannelID), slog.String("streamer", string(k)))
		return
	}
	if err == nil {
		telemetry.IncMessageAction("delete")
	}

	r.mu.Lock()
	r.forgetLocked(gs, k, msg.ID)
	memberID, tracked := gs.liveMembers[k]
	delete(gs.liveMembers, k)
	r.mu.Unlock()

	if tracked && cfg.HasLiveRole() {
		r.revokeRole(ctx, cfg, memberID, log)
	}
}

func (r *Reconciler) remember(gs *groupState, k Key, id string, out Outgoing) {
	r.mu.Lock()
	gs.messages[k] = RenderedMessage{ID: id, Content: out.Content, Title: out.Embed.Title}
	r.mu.Unlock()
}

func (r *Reconciler) forget(gs *groupState, k Key, id string) {
	r.mu.Lock()
	r.forgetLocked(gs, k, id)
	r.mu.Unlock()
}

func (r *Reconciler) forgetLocked(gs *groupState, k Key, id string) {
	if cur, ok := gs.messages[k]; ok && cur.ID == id {
		delete(gs.messages, k)
	}
}

// syncMessages converges the guild's channel on its visible set. Only
// tracked messages are ever retired. Requires gs.outMu.
func (r *Reconciler) syncMessages(ctx context.Context, cfg guild.Config, gs *groupState, rediscover, pollFailed bool, log *slog.Logger) {
	r.mu.Lock()
	needDiscovery := !gs.discovered || rediscover
	r.mu.Unlock()
	if needDiscovery {
		// Unreadable history leaves the tracked cache in charge. Duplicates
		// created meanwhile are cleaned up by the next successful discovery.
		_ = r.discover(ctx, cfg, gs, log)
	}

	r.mu.Lock()
	want := make(map[Key]Outgoing, len(gs.records))
	for k, rec := range gs.records {
		if g := r.global[k]; g != nil {
			want[k] = r.render(cfg, k, rec, g)
		}
	}
	stale := make(map[Key]RenderedMessage)
	if !pollFailed {
		for k, m := range gs.messages {
			if _, ok := gs.records[k]; !ok {
				stale[k] = m
			}
		}
	}
	r.mu.Unlock()

	for _, k := range sortedKeys(want) {
		r.ensureMessage(ctx, cfg, gs, k, want[k], log)
	}
	for _, k := range sortedKeys(stale) {
		r.retire(ctx, cfg, gs, k, stale[k], log)
	}
}

func sortedKeys[V any](m map[Key]V) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
