package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/twitchapi"
)

type fakeGames struct {
	known map[string]string // folded -> canonical
	err   error
}

func (f fakeGames) GetGames(_ context.Context, names []string) ([]twitchapi.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []twitchapi.Game
	for _, n := range names {
		if c, ok := f.known[strings.ToLower(n)]; ok {
			out = append(out, twitchapi.Game{ID: "1", Name: c})
		}
	}
	return out, nil
}

func run(t *testing.T, store guild.Store, games GameLookup, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	d := deps{
		open: func(context.Context) (guild.Store, func(), error) { return store, func() {}, nil },
		out:  &out,
	}
	if games != nil {
		d.games = games
	}
	root := newRootCmd(d)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, store guild.Store, args ...string) string {
	t.Helper()
	out, err := run(t, store, nil, args...)
	if err != nil {
		t.Fatalf("guildctl %v: %v", args, err)
	}
	return out
}

func get(t *testing.T, store guild.Store, id string) guild.Config {
	t.Helper()
	cfg, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return cfg
}

func TestEditCommands(t *testing.T) {
	store := guild.NewMemoryStore()

	mustRun(t, store, "channel", "g1", "c1")
	mustRun(t, store, "live-role", "g1", "live")
	mustRun(t, store, "streamer-role", "add", "g1", "r1")
	mustRun(t, store, "streamer-role", "add", "g1", "r2", "--filtered")
	mustRun(t, store, "muted-role", "add", "g1", "m1")
	mustRun(t, store, "streamer", "add", "g1", "https://www.twitch.tv/Alice")
	mustRun(t, store, "streamer", "add", "g1", "@bob")
	mustRun(t, store, "category", "add", "g1", "Just", "Chatting")

	got := get(t, store, "g1")
	want := guild.Config{
		ID:            "g1",
		ChannelID:     "c1",
		LiveRoleID:    "live",
		StreamerRoles: map[string]bool{"r1": false, "r2": true},
		MutedRoles:    []string{"m1"},
		Streamers:     []string{"Alice", "bob"},
		Categories:    []string{"Just Chatting"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	mustRun(t, store, "streamer-role", "set", "g1", "r3")
	mustRun(t, store, "streamer", "remove", "g1", "ALICE")
	mustRun(t, store, "category", "remove", "g1", "just", "chatting")
	mustRun(t, store, "muted-role", "remove", "g1", "m1")
	mustRun(t, store, "live-role", "g1")

	got = get(t, store, "g1")
	want = guild.Config{
		ID:            "g1",
		ChannelID:     "c1",
		StreamerRoles: map[string]bool{"r3": false},
		MutedRoles:    []string{},
		Streamers:     []string{"bob"},
		Categories:    []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config after removals mismatch (-want +got):\n%s", diff)
	}
}

func TestEditErrors(t *testing.T) {
	store := guild.NewMemoryStore()
	mustRun(t, store, "streamer", "add", "g1", "Alice")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"duplicate streamer ignores case", []string{"streamer", "add", "g1", "alice"}, guild.ErrDuplicate},
		{"missing streamer", []string{"streamer", "remove", "g1", "carol"}, guild.ErrMissing},
		{"missing streamer role", []string{"streamer-role", "remove", "g1", "r9"}, guild.ErrMissing},
		{"missing muted role", []string{"muted-role", "remove", "g1", "m9"}, guild.ErrMissing},
		{"missing category", []string{"category", "remove", "g1", "Art"}, guild.ErrMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, store, nil, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := run(t, store, nil, "streamer", "add", "g1", "not a name!"); err == nil {
		t.Error("expected invalid username error")
	}
	if _, err := run(t, store, nil, "channel"); err == nil {
		t.Error("expected argument error")
	}
}

func TestStreamerListFull(t *testing.T) {
	cfg := guild.Default("g1")
	for i := 0; i < guild.MaxStreamers; i++ {
		cfg.Streamers = append(cfg.Streamers, "s"+strings.Repeat("x", i+1))
	}
	store := guild.NewMemoryStore(cfg)
	_, err := run(t, store, nil, "streamer", "add", "g1", "newcomer")
	if !errors.Is(err, guild.ErrListFull) {
		t.Errorf("err = %v, want ErrListFull", err)
	}
}

func TestCategoryValidation(t *testing.T) {
	store := guild.NewMemoryStore()
	games := fakeGames{known: map[string]string{"just chatting": "Just Chatting"}}

	out, err := run(t, store, games, "category", "add", "g1", "just", "chatting")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "allowed Just Chatting") {
		t.Errorf("output = %q", out)
	}
	if got := get(t, store, "g1").Categories; !cmp.Equal(got, []string{"Just Chatting"}) {
		t.Errorf("categories = %v", got)
	}

	if _, err := run(t, store, games, "category", "add", "g1", "Nonexistent"); err == nil {
		t.Error("expected unknown category error")
	}

	helixDown := fakeGames{err: &twitchapi.BackendError{Status: 503, Path: "/games"}}
	if _, err := run(t, store, helixDown, "category", "add", "g1", "Art"); !errors.Is(err, twitchapi.ErrBackend) {
		t.Errorf("err = %v, want ErrBackend", err)
	}
	if got := get(t, store, "g1").Categories; len(got) != 1 {
		t.Errorf("failed validation changed categories: %v", got)
	}
}

func TestListAndShow(t *testing.T) {
	a := guild.Default("g1")
	a.Name = "Alpha"
	a.ChannelID = "c1"
	a.Streamers = []string{"alice"}
	a.StreamerRoles = map[string]bool{"r2": true, "r1": false}
	b := guild.Default("g2")
	store := guild.NewMemoryStore(a, b)

	out := mustRun(t, store, "list")
	want := "g1\tAlpha\tchannel=c1\troles=r1,r2*\tstreamers=1\ng2\t\tinactive\troles=\tstreamers=0\n"
	if out != want {
		t.Errorf("list output = %q, want %q", out, want)
	}

	out = mustRun(t, store, "show", "g1")
	for _, s := range []string{"channel_id: c1", "- alice", "name: Alpha"} {
		if !strings.Contains(out, s) {
			t.Errorf("show output missing %q:\n%s", s, out)
		}
	}
}

func TestStoreOpenError(t *testing.T) {
	d := deps{
		open: func(context.Context) (guild.Store, func(), error) { return nil, nil, errors.New("no store") },
		out:  &bytes.Buffer{},
	}
	root := newRootCmd(d)
	root.SetArgs([]string{"list"})
	if err := root.ExecuteContext(context.Background()); err == nil || err.Error() != "no store" {
		t.Errorf("err = %v", err)
	}
}
