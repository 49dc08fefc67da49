package live

import (
	"sync"
	"time"

	"github.com/onnwee/livewatch/twitchapi"
)

// GlobalRecord is the canonical live record of one streamer, shared by all
// guilds. It exists only while the streamer is considered live.
type GlobalRecord struct {
	Login     string
	Game      string
	Title     string
	URL       string
	StartedAt time.Time

	Thumbnail    string
	ProfileImage string
	GameImage    string

	// FromAPI is set when the last confirmation came from polling Helix
	// rather than from observing a member.
	FromAPI bool
}

// GroupRecord is a streamer visible in one guild.
type GroupRecord struct {
	DisplayName string
	// Avatar overrides the profile image when the streamer was observed as a member.
	Avatar          string
	MemberID        string
	HasStreamerRole bool
}

// RenderedMessage is the last known state of a live message.
type RenderedMessage struct {
	ID      string
	Content string
	Title   string
}

type groupState struct {
	// outMu serializes chat mutations for the guild. Lock order: outMu, then
	// Reconciler.mu.
	outMu sync.Mutex

	channelID  string
	discovered bool
	records    map[Key]*GroupRecord
	messages   map[Key]RenderedMessage
	// liveMembers maps a key to the member holding the live role because of it.
	liveMembers map[Key]string
}

func newGroupState(channelID string) *groupState {
	return &groupState{
		channelID:   channelID,
		records:     make(map[Key]*GroupRecord),
		messages:    make(map[Key]RenderedMessage),
		liveMembers: make(map[Key]string),
	}
}

// untrackMember forgets every live-role entry held by memberID.
func (gs *groupState) untrackMember(memberID string) {
	for k, id := range gs.liveMembers {
		if id == memberID {
			delete(gs.liveMembers, k)
		}
	}
}

// The methods below require r.mu.

// group returns the state of guildID, resetting the message cache when the
// output channel changed.
func (r *Reconciler) group(guildID, channelID string) *groupState {
	gs, ok := r.groups[guildID]
	if !ok {
		gs = newGroupState(channelID)
		r.groups[guildID] = gs
		return gs
	}
	if gs.channelID != channelID {
		gs.channelID = channelID
		gs.discovered = false
		gs.messages = make(map[Key]RenderedMessage)
	}
	return gs
}

// mergeMember applies member evidence, keeping enrichment and provenance.
func (r *Reconciler) mergeMember(k Key, ev MemberEvidence) {
	g := r.global[k]
	if g == nil {
		g = &GlobalRecord{}
		r.global[k] = g
	}
	g.Login = ev.Login
	g.Game = ev.Game
	g.Title = ev.Title
	g.URL = ev.URL
	g.StartedAt = ev.StartedAt
	g.GameImage, _ = r.enrich.BoxArt(ev.Game)
}

// mergeAPI applies a polled stream, keeping only the profile image.
func (r *Reconciler) mergeAPI(k Key, s twitchapi.Stream, thumb string) {
	rec := &GlobalRecord{
		Login:     s.UserLogin,
		Game:      s.GameName,
		Title:     s.Title,
		URL:       s.URL(),
		StartedAt: s.StartedAt,
		Thumbnail: thumb,
		FromAPI:   true,
	}
	if old := r.global[k]; old != nil {
		rec.ProfileImage = old.ProfileImage
	}
	rec.GameImage, _ = r.enrich.BoxArt(s.GameName)
	r.global[k] = rec
}

// referenced reports whether any guild still shows k.
func (r *Reconciler) referenced(k Key) bool {
	for _, gs := range r.groups {
		if _, ok := gs.records[k]; ok {
			return true
		}
	}
	return false
}
