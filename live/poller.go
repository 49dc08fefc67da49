package live

import (
	"context"
	"log/slog"
	"sort"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/telemetry"
	"github.com/onnwee/livewatch/twitchapi"
)

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func keyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// watchedKeys is the sorted union of the watch-lists of cfgs.
func watchedKeys(cfgs []guild.Config) []Key {
	set := make(map[Key]struct{})
	for _, cfg := range cfgs {
		for _, name := range cfg.Streamers {
			if k := KeyOf(name); k != "" {
				set[k] = struct{}{}
			}
		}
	}
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// pollStreams queries Helix for every watched key and merges the result.
// It reports whether any batch failed; failed batches delete nothing.
func (r *Reconciler) pollStreams(ctx context.Context, cfgs []guild.Config, valid map[Key]struct{}, log *slog.Logger) bool {
	if r.platform == nil {
		return false
	}
	failed := false
	for i, batch := range batches(watchedKeys(cfgs), twitchapi.MaxBatch) {
		streams, err := r.platform.GetStreams(ctx, keyStrings(batch))
		if err != nil {
			failed = true
			telemetry.IncPollFailure()
			log.Warn("twitch stream poll failed; keeping current state",
				slog.Int("batch", i), slog.Int("size", len(batch)), slog.Any("err", err))
			continue
		}
		r.mu.Lock()
		for _, s := range streams {
			k := KeyOf(s.UserLogin)
			if k == "" {
				continue
			}
			thumb := s.Thumbnail(thumbnailWidth, thumbnailHeight)
			r.enrich.ObserveThumbnail(k, thumb)
			if _, ok := valid[k]; ok {
				continue
			}
			r.mergeAPI(k, s, thumb)
			valid[k] = struct{}{}
		}
		for _, k := range batch {
			if _, ok := valid[k]; !ok {
				delete(r.global, k)
			}
		}
		r.mu.Unlock()
	}
	return failed
}

// fetchAvatars fills profile images for guild entries that have no member
// avatar. Lookups go cache, then image store, then Helix.
func (r *Reconciler) fetchAvatars(ctx context.Context, log *slog.Logger) {
	now := r.now()
	r.mu.Lock()
	need := make(map[Key]struct{})
	for _, gs := range r.groups {
		for k, rec := range gs.records {
			if rec.Avatar == "" && r.global[k] != nil {
				need[k] = struct{}{}
			}
		}
	}
	unknown := r.enrich.UnknownAvatars(need, now)
	r.mu.Unlock()

	if len(unknown) > 0 && r.images != nil {
		stored, err := r.images.Avatars(ctx, unknown)
		if err != nil {
			log.Warn("image store avatar lookup failed", slog.Any("err", err))
		}
		if len(stored) > 0 {
			r.mu.Lock()
			for k, u := range stored {
				r.enrich.PutAvatar(k, u, now)
			}
			r.mu.Unlock()
			unknown = remainingKeys(unknown, stored)
		}
	}

	if len(unknown) > 0 && r.platform != nil {
		for _, batch := range batches(unknown, twitchapi.MaxBatch) {
			users, err := r.platform.GetUsers(ctx, keyStrings(batch))
			if err != nil {
				log.Warn("twitch profile lookup failed", slog.Int("size", len(batch)), slog.Any("err", err))
				continue
			}
			fetched := make(map[Key]string, len(batch))
			for _, k := range batch {
				fetched[k] = ""
			}
			for _, u := range users {
				fetched[KeyOf(u.Login)] = u.ProfileImageURL
			}
			r.mu.Lock()
			for k, u := range fetched {
				r.enrich.PutAvatar(k, u, now)
			}
			r.mu.Unlock()
			if r.images != nil {
				found := make(map[Key]string, len(users))
				for k, u := range fetched {
					if u != "" {
						found[k] = u
					}
				}
				if err := r.images.SaveAvatars(ctx, found); err != nil {
					log.Warn("image store avatar save failed", slog.Any("err", err))
				}
			}
		}
	}

	r.mu.Lock()
	for k := range need {
		g := r.global[k]
		if u, ok := r.enrich.Avatar(k, now); ok && u != "" && g != nil {
			g.ProfileImage = u
		}
	}
	r.mu.Unlock()
}

// fetchBoxArt fills game images for live records.
func (r *Reconciler) fetchBoxArt(ctx context.Context, log *slog.Logger) {
	r.mu.Lock()
	games := make(map[string]struct{})
	for _, g := range r.global {
		if g.GameImage == "" && g.Game != "" {
			games[g.Game] = struct{}{}
		}
	}
	unknown := r.enrich.UnknownGames(games)
	r.mu.Unlock()

	if len(unknown) > 0 && r.images != nil {
		stored, err := r.images.BoxArt(ctx, unknown)
		if err != nil {
			log.Warn("image store box art lookup failed", slog.Any("err", err))
		}
		if len(stored) > 0 {
			r.mu.Lock()
			for game, u := range stored {
				r.enrich.PutBoxArt(game, u)
			}
			r.mu.Unlock()
			unknown = remainingGames(unknown, stored)
		}
	}

	if len(unknown) > 0 && r.platform != nil {
		for _, batch := range batches(unknown, twitchapi.MaxBatch) {
			found, err := r.platform.GetGames(ctx, batch)
			if err != nil {
				log.Warn("twitch game lookup failed", slog.Int("size", len(batch)), slog.Any("err", err))
				continue
			}
			art := make(map[string]string, len(found))
			for _, g := range found {
				art[g.Name] = g.BoxArt(boxArtWidth, boxArtHeight)
			}
			r.mu.Lock()
			for game, u := range art {
				r.enrich.PutBoxArt(game, u)
			}
			r.mu.Unlock()
			if r.images != nil && len(art) > 0 {
				if err := r.images.SaveBoxArt(ctx, art); err != nil {
					log.Warn("image store box art save failed", slog.Any("err", err))
				}
			}
		}
	}

	r.mu.Lock()
	for _, g := range r.global {
		if g.GameImage == "" {
			g.GameImage, _ = r.enrich.BoxArt(g.Game)
		}
	}
	r.mu.Unlock()
}

func remainingKeys(keys []Key, found map[Key]string) []Key {
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := found[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func remainingGames(games []string, found map[string]string) []string {
	out := games[:0:0]
	for _, g := range games {
		if _, ok := found[g]; !ok {
			out = append(out, g)
		}
	}
	return out
}
