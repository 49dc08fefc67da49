package live

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	thumbnailWidth  = 320
	thumbnailHeight = 180
	boxArtWidth     = 60
	boxArtHeight    = 80

	userPlaceholder = "{user_name}"
)

type avatarEntry struct {
	url string
	at  time.Time
}

// Enrichment caches profile images and box art across ticks and guilds, and
// infers a thumbnail URL template from observed streams. It is guarded by the
// owning Reconciler's mutex.
type Enrichment struct {
	avatarTTL time.Duration
	avatars   map[Key]avatarEntry
	boxArt    map[string]string

	template string
	rejected map[string]struct{}
}

func newEnrichment(avatarTTL time.Duration) *Enrichment {
	return &Enrichment{
		avatarTTL: avatarTTL,
		avatars:   make(map[Key]avatarEntry),
		boxArt:    make(map[string]string),
		rejected:  make(map[string]struct{}),
	}
}

// deriveTemplate swaps the first occurrence of the login for the placeholder.
// A login that is absent, or that occurs more than once, gives no template.
func deriveTemplate(k Key, thumb string) (string, bool) {
	name := string(k)
	if name == "" || !strings.Contains(thumb, name) {
		return "", false
	}
	t := strings.Replace(thumb, name, userPlaceholder, 1)
	if strings.Contains(t, name) {
		return "", false
	}
	return t, true
}

// ObserveThumbnail feeds an explicit thumbnail into template inference.
func (e *Enrichment) ObserveThumbnail(k Key, thumb string) {
	if thumb == "" {
		return
	}
	if e.template == "" {
		t, ok := deriveTemplate(k, thumb)
		if !ok {
			return
		}
		if _, bad := e.rejected[t]; bad {
			return
		}
		e.template = t
		slog.Info("thumbnail template inferred", slog.String("template", t))
		return
	}
	if e.Thumbnail(k) != thumb {
		slog.Warn("thumbnail template contradicted", slog.String("template", e.template), slog.String("login", string(k)))
		e.rejected[e.template] = struct{}{}
		e.template = ""
	}
}

// Thumbnail guesses the thumbnail of k from the inferred template, or "".
func (e *Enrichment) Thumbnail(k Key) string {
	if e.template == "" {
		return ""
	}
	return strings.Replace(e.template, userPlaceholder, string(k), 1)
}

// Template returns the current inferred template, or "".
func (e *Enrichment) Template() string { return e.template }

// Avatar returns the cached profile image of k if it is still fresh.
func (e *Enrichment) Avatar(k Key, now time.Time) (string, bool) {
	a, ok := e.avatars[k]
	if !ok || (e.avatarTTL > 0 && now.Sub(a.at) > e.avatarTTL) {
		return "", false
	}
	return a.url, true
}

func (e *Enrichment) PutAvatar(k Key, url string, now time.Time) {
	e.avatars[k] = avatarEntry{url: url, at: now}
}

// UnknownAvatars returns the sorted subset of keys without a fresh avatar.
func (e *Enrichment) UnknownAvatars(keys map[Key]struct{}, now time.Time) []Key {
	out := make([]Key, 0, len(keys))
	for k := range keys {
		if _, ok := e.Avatar(k, now); !ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Enrichment) BoxArt(game string) (string, bool) {
	u, ok := e.boxArt[game]
	return u, ok
}

func (e *Enrichment) PutBoxArt(game, url string) {
	if game != "" && url != "" {
		e.boxArt[game] = url
	}
}

// UnknownGames returns the sorted subset of games without box art.
func (e *Enrichment) UnknownGames(games map[string]struct{}) []string {
	out := make([]string, 0, len(games))
	for g := range games {
		if _, ok := e.boxArt[g]; !ok && g != "" {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}
