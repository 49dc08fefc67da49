package live

import (
	"sort"
	"time"

	"github.com/onnwee/livewatch/guild"
)

// MemberEvidence is what a streaming member tells us about a stream.
type MemberEvidence struct {
	Login     string
	Title     string
	Game      string
	URL       string
	StartedAt time.Time
	Member    Member
}

// Evidence is the result of scanning one guild's members.
type Evidence struct {
	ByKey map[Key]MemberEvidence
	// Streamers holds every non-muted member with a streamer role, by id.
	Streamers map[string]Member
	// Live maps the id of each streaming member to its key. The key is empty
	// when the chat platform did not report a Twitch username.
	Live map[string]Key
}

// CollectEvidence derives member evidence for cfg from a member snapshot.
func CollectEvidence(cfg guild.Config, members []Member) Evidence {
	ev := Evidence{
		ByKey:     make(map[Key]MemberEvidence),
		Streamers: make(map[string]Member),
		Live:      make(map[string]Key),
	}
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		obs := observe(cfg, m)
		if !obs.streamer {
			continue
		}
		ev.Streamers[m.ID] = m
		if !obs.live {
			continue
		}
		ev.Live[m.ID] = obs.key
		if obs.key == "" {
			continue
		}
		if _, dup := ev.ByKey[obs.key]; !dup {
			ev.ByKey[obs.key] = obs.evidence
		}
	}
	return ev
}

type observation struct {
	streamer bool
	live     bool
	key      Key
	evidence MemberEvidence
}

// observe classifies one member. The category allow-list applies only when
// every streamer role the member holds is filtered, and the first Twitch
// streaming activity decides.
func observe(cfg guild.Config, m Member) observation {
	var obs observation
	filtered := true
	for id, f := range cfg.StreamerRoles {
		if m.HasRole(id) {
			obs.streamer = true
			filtered = filtered && f
		}
	}
	if !obs.streamer || m.HasAnyRole(cfg.MutedRoles) {
		return observation{}
	}
	for _, a := range m.Activities {
		if a.Kind != ActivityStreaming || a.Stream == nil || a.Stream.Platform != PlatformTwitch {
			continue
		}
		s := a.Stream
		if filtered && !cfg.AllowsCategory(s.Game) {
			break
		}
		obs.live = true
		if s.Username != "" {
			obs.key = KeyOf(s.Username)
			obs.evidence = MemberEvidence{
				Login:     s.Username,
				Title:     s.Title,
				Game:      s.Game,
				URL:       s.URL,
				StartedAt: s.StartedAt,
				Member:    m,
			}
		}
		break
	}
	return obs
}
