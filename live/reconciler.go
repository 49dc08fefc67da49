// Package live keeps Discord live-stream announcements in sync with Twitch.
//
// A Reconciler merges member evidence (streaming presence of members holding a
// streamer role) with API evidence (Helix polling of guild watch-lists) into
// one registry, projects it per guild, and converges each guild's channel and
// live role on that projection. Polling failures never cause deletions.
package live

import (
	"sort"
	"sync"
	"time"

	"github.com/onnwee/livewatch/guild"
)

const tracerName = "livewatch/live"

// Reconciler owns the registry and per-guild rendered state.
type Reconciler struct {
	chat     Chat
	platform Platform
	store    guild.Store
	images   ImageStore

	historyLimit int
	scanEvery    int
	now          func() time.Time

	// mu guards everything below. It is never held across a chat or Helix call.
	mu         sync.Mutex
	global     map[Key]*GlobalRecord
	groups     map[string]*groupState
	enrich     *Enrichment
	ticks      int
	lastReport *TickReport
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithImageStore persists avatar and box art lookups.
func WithImageStore(s ImageStore) Option { return func(r *Reconciler) { r.images = s } }

// WithHistoryLimit sets how many channel messages discovery reads.
func WithHistoryLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithMemberScanEvery runs the member scan on the first tick and then every n ticks.
func WithMemberScanEvery(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.scanEvery = n
		}
	}
}

// WithAvatarTTL bounds how long a fetched profile image is reused.
func WithAvatarTTL(d time.Duration) Option {
	return func(r *Reconciler) { r.enrich.avatarTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// New builds a Reconciler. platform may be nil, in which case nothing is
// polled and only member evidence is rendered.
func New(chat Chat, platform Platform, store guild.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		chat:         chat,
		platform:     platform,
		store:        store,
		historyLimit: 100,
		scanEvery:    60,
		now:          time.Now,
		global:       make(map[Key]*GlobalRecord),
		groups:       make(map[string]*groupState),
		enrich:       newEnrichment(24 * time.Hour),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StreamerStatus is one registry entry in a Status.
type StreamerStatus struct {
	Key       Key       `json:"key"`
	Login     string    `json:"login"`
	Game      string    `json:"game"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
	FromAPI   bool      `json:"from_api"`
}

// GuildStatus is one guild's rendered state in a Status.
type GuildStatus struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Visible   []Key  `json:"visible"`
	Messages  int    `json:"messages"`
}

// Status is a point-in-time view of the reconciler.
type Status struct {
	Ticks             int              `json:"ticks"`
	LastTick          *TickReport      `json:"last_tick,omitempty"`
	ThumbnailTemplate string           `json:"thumbnail_template,omitempty"`
	Streamers         []StreamerStatus `json:"streamers"`
	Guilds            []GuildStatus    `json:"guilds"`
}

// Snapshot returns the current Status.
func (r *Reconciler) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Ticks:             r.ticks,
		ThumbnailTemplate: r.enrich.Template(),
		Streamers:         make([]StreamerStatus, 0, len(r.global)),
		Guilds:            make([]GuildStatus, 0, len(r.groups)),
	}
	if r.lastReport != nil {
		rep := *r.lastReport
		st.LastTick = &rep
	}
	for k, g := range r.global {
		st.Streamers = append(st.Streamers, StreamerStatus{Key: k, Login: g.Login, Game: g.Game, Title: g.Title, StartedAt: g.StartedAt, FromAPI: g.FromAPI})
	}
	sort.Slice(st.Streamers, func(i, j int) bool { return st.Streamers[i].Key < st.Streamers[j].Key })
	for id, gs := range r.groups {
		gst := GuildStatus{ID: id, ChannelID: gs.channelID, Visible: sortedKeys(gs.records), Messages: len(gs.messages)}
		st.Guilds = append(st.Guilds, gst)
	}
	sort.Slice(st.Guilds, func(i, j int) bool { return st.Guilds[i].ID < st.Guilds[j].ID })
	return st
}

// LastReport returns the report of the most recent tick, if any.
func (r *Reconciler) LastReport() (TickReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastReport == nil {
		return TickReport{}, false
	}
	return *r.lastReport, true
}
