package live

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/twitchapi"
)

const botID = "bot"

type call struct {
	Op      string
	Channel string
	Message string
	Member  string
	Role    string
	Out     Outgoing
}

// fakeChat is an in-memory chat platform. Role mutations are reflected in
// later member snapshots and messages in later history reads.
type fakeChat struct {
	mu      sync.Mutex
	members map[string][]Member  // guild -> members
	history map[string][]Message // channel -> newest first
	calls   []call
	nextID  int

	membersErr error
	historyErr error
	sendErr    error
	roleErr    error
}

func newFakeChat() *fakeChat {
	return &fakeChat{members: map[string][]Member{}, history: map[string][]Message{}}
}

func (f *fakeChat) SelfID() string { return botID }

func (f *fakeChat) setMembers(guildID string, ms ...Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[guildID] = ms
}

func (f *fakeChat) member(guildID, id string) Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[guildID] {
		if m.ID == id {
			m.Roles = slices.Clone(m.Roles)
			return m
		}
	}
	return Member{}
}

func (f *fakeChat) GuildMembers(_ context.Context, guildID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	out := make([]Member, len(f.members[guildID]))
	for i, m := range f.members[guildID] {
		m.Roles = slices.Clone(m.Roles)
		out[i] = m
	}
	return out, nil
}

func (f *fakeChat) ChannelHistory(_ context.Context, channelID string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	h := f.history[channelID]
	if len(h) > limit {
		h = h[:limit]
	}
	return slices.Clone(h), nil
}

func (f *fakeChat) SendMessage(_ context.Context, channelID string, out Outgoing) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.history[channelID] = append([]Message{{ID: id, AuthorID: botID, Content: out.Content, Embeds: []Embed{out.Embed}}}, f.history[channelID]...)
	f.calls = append(f.calls, call{Op: "send", Channel: channelID, Message: id, Out: out})
	return id, nil
}

func (f *fakeChat) EditMessage(_ context.Context, channelID, messageID string, out Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.history[channelID] {
		if m.ID == messageID {
			f.history[channelID][i].Content = out.Content
			f.history[channelID][i].Embeds = []Embed{out.Embed}
			f.calls = append(f.calls, call{Op: "edit", Channel: channelID, Message: messageID, Out: out})
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeChat) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.history[channelID] {
		if m.ID == messageID {
			f.history[channelID] = slices.Delete(f.history[channelID], i, i+1)
			f.calls = append(f.calls, call{Op: "delete", Channel: channelID, Message: messageID})
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeChat) setRole(guildID, userID, roleID string, add bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return f.roleErr
	}
	op := "revoke"
	if add {
		op = "grant"
	}
	for i, m := range f.members[guildID] {
		if m.ID != userID {
			continue
		}
		roles := slices.DeleteFunc(slices.Clone(m.Roles), func(r string) bool { return r == roleID })
		if add {
			roles = append(roles, roleID)
		}
		f.members[guildID][i].Roles = roles
	}
	f.calls = append(f.calls, call{Op: op, Member: userID, Role: roleID})
	return nil
}

func (f *fakeChat) AddRole(_ context.Context, guildID, userID, roleID, _ string) error {
	return f.setRole(guildID, userID, roleID, true)
}

func (f *fakeChat) RemoveRole(_ context.Context, guildID, userID, roleID, _ string) error {
	return f.setRole(guildID, userID, roleID, false)
}

// mutations returns and clears the recorded calls.
func (f *fakeChat) mutations() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func (f *fakeChat) ops() []string {
	var out []string
	for _, c := range f.mutations() {
		out = append(out, c.Op)
	}
	return out
}

// visible returns the embed author names of the bot's messages in a channel.
func (f *fakeChat) visible(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.history[channelID] {
		if m.AuthorID == botID && len(m.Embeds) > 0 {
			out = append(out, m.Embeds[0].AuthorName)
		}
	}
	slices.Sort(out)
	return out
}

func (f *fakeChat) messages(channelID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.history[channelID])
}

// fakePlatform answers Helix queries from a set of live streams.
type fakePlatform struct {
	mu       sync.Mutex
	live     map[string]twitchapi.Stream
	profiles map[string]string
	boxArt   map[string]string

	streamsErr error
	usersErr   error

	streamCalls [][]string
	userCalls   int
	gameCalls   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{live: map[string]twitchapi.Stream{}, profiles: map[string]string{}, boxArt: map[string]string{}}
}

func (p *fakePlatform) goLive(login, game, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[strings.ToLower(login)] = twitchapi.Stream{
		UserLogin:    login,
		UserName:     login,
		GameName:     game,
		Title:        title,
		Type:         "live",
		ThumbnailURL: "https://static-cdn.jtvnw.net/previews-ttv/live_user_" + strings.ToLower(login) + "-{width}x{height}.jpg",
		StartedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (p *fakePlatform) goOffline(login string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, strings.ToLower(login))
}

func (p *fakePlatform) setStreamsErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamsErr = err
}

func (p *fakePlatform) GetStreams(_ context.Context, logins []string) ([]twitchapi.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCalls = append(p.streamCalls, slices.Clone(logins))
	if p.streamsErr != nil {
		return nil, p.streamsErr
	}
	var out []twitchapi.Stream
	for _, l := range logins {
		if s, ok := p.live[l]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *fakePlatform) GetUsers(_ context.Context, logins []string) ([]twitchapi.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userCalls++
	if p.usersErr != nil {
		return nil, p.usersErr
	}
	var out []twitchapi.User
	for _, l := range logins {
		if img, ok := p.profiles[l]; ok {
			out = append(out, twitchapi.User{Login: l, ProfileImageURL: img})
		}
	}
	return out, nil
}

func (p *fakePlatform) GetGames(_ context.Context, names []string) ([]twitchapi.Game, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameCalls++
	var out []twitchapi.Game
	for _, n := range names {
		if art, ok := p.boxArt[n]; ok {
			out = append(out, twitchapi.Game{Name: n, BoxArtURL: art})
		}
	}
	return out, nil
}

// streamingMember builds a member streaming on Twitch.
func streamingMember(id, name, login, game string, roles ...string) Member {
	m := Member{ID: id, DisplayName: name, AvatarURL: "https://cdn/avatars/" + id + ".png", Roles: roles}
	m.Activities = []Activity{{
		Kind: ActivityStreaming,
		Name: PlatformTwitch,
		Stream: &Stream{
			Platform:  PlatformTwitch,
			Username:  login,
			Title:     name + " stream",
			Game:      game,
			URL:       "https://www.twitch.tv/" + login,
			StartedAt: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		},
	}}
	return m
}

type harness struct {
	r     *Reconciler
	chat  *fakeChat
	plat  *fakePlatform
	store *guild.MemoryStore
}

func newHarness(t *testing.T, opts []Option, cfgs ...guild.Config) *harness {
	t.Helper()
	h := &harness{chat: newFakeChat(), plat: newFakePlatform(), store: guild.NewMemoryStore(cfgs...)}
	h.r = New(h.chat, h.plat, h.store, append([]Option{WithMemberScanEvery(1)}, opts...)...)
	return h
}

func (h *harness) tick(t *testing.T) TickReport {
	t.Helper()
	rep := h.r.Tick(context.Background())
	if rep.Err != "" {
		t.Fatalf("tick error: %s", rep.Err)
	}
	return rep
}
