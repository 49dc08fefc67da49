package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/livewatch/live"
)

func TestConvertActivity(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   *discordgo.Activity
		want live.Activity
	}{
		{
			name: "twitch stream",
			in: &discordgo.Activity{
				Name:      "Twitch",
				Type:      discordgo.ActivityTypeStreaming,
				URL:       "https://www.twitch.tv/Alice",
				Details:   "Morning stream",
				State:     "Just Chatting",
				CreatedAt: started,
				Assets:    discordgo.Assets{LargeImageID: "twitch:Alice"},
			},
			want: live.Activity{Kind: live.ActivityStreaming, Name: "Twitch", Stream: &live.Stream{
				Platform: "Twitch", Username: "Alice", Title: "Morning stream", Game: "Just Chatting",
				URL: "https://www.twitch.tv/Alice", StartedAt: started,
			}},
		},
		{
			name: "stream without username",
			in:   &discordgo.Activity{Name: "Twitch", Type: discordgo.ActivityTypeStreaming, State: "Art"},
			want: live.Activity{Kind: live.ActivityStreaming, Name: "Twitch", Stream: &live.Stream{Platform: "Twitch", Game: "Art"}},
		},
		{
			name: "game",
			in:   &discordgo.Activity{Name: "Chess", Type: discordgo.ActivityTypeGame},
			want: live.Activity{Kind: live.ActivityOther, Name: "Chess"},
		},
		{
			name: "nil",
			want: live.Activity{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, convertActivity(tt.in)); diff != "" {
				t.Errorf("convertActivity mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvertMember(t *testing.T) {
	m := &discordgo.Member{
		Nick:  "",
		Roles: []string{"r1"},
		User:  &discordgo.User{ID: "u1", Username: "bob", GlobalName: "Bobby"},
	}
	p := &discordgo.Presence{Activities: []*discordgo.Activity{
		{Name: "Twitch", Type: discordgo.ActivityTypeStreaming, Assets: discordgo.Assets{LargeImageID: "twitch:bobtv"}},
	}}

	got := convertMember(m, p)
	if got.ID != "u1" || got.DisplayName != "Bobby" {
		t.Errorf("member = %+v", got)
	}
	if len(got.Activities) != 1 || got.Activities[0].Stream.Username != "bobtv" {
		t.Errorf("activities = %+v", got.Activities)
	}

	m.Nick = "Bob the Builder"
	if got := convertMember(m, nil); got.DisplayName != "Bob the Builder" || len(got.Activities) != 0 {
		t.Errorf("member with nick = %+v", got)
	}
}

func TestEmbedRoundTrip(t *testing.T) {
	in := live.Embed{
		Title:      "title",
		URL:        "https://www.twitch.tv/alice",
		AuthorName: "Alice",
		AuthorURL:  "https://www.twitch.tv/alice",
		AuthorIcon: "https://img/a.png",
		Thumbnail:  "https://img/t.jpg",
		Footer:     "Art",
		FooterIcon: "https://img/art.jpg",
		Color:      live.EmbedColor,
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	msg := &discordgo.Message{
		ID:      "m1",
		Content: "hello",
		Author:  &discordgo.User{ID: "bot"},
		Embeds:  []*discordgo.MessageEmbed{toEmbed(in)},
	}
	want := live.Message{ID: "m1", AuthorID: "bot", Content: "hello", Embeds: []live.Embed{in}}
	if diff := cmp.Diff(want, convertMessage(msg)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func restErr(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status, Status: http.StatusText(status)}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"forbidden", restErr(http.StatusForbidden), live.ErrForbidden},
		{"not found", restErr(http.StatusNotFound), live.ErrNotFound},
		{"rate limited", restErr(http.StatusTooManyRequests), live.ErrTransient},
		{"server error", restErr(http.StatusBadGateway), live.ErrTransient},
		{"wrapped", fmt.Errorf("send: %w", restErr(http.StatusForbidden)), live.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	plain := errors.New("boom")
	if got := classify(plain); got != plain {
		t.Errorf("unclassified error changed: %v", got)
	}
	if classify(nil) != nil {
		t.Error("classify(nil) != nil")
	}
	if got := classify(restErr(http.StatusBadRequest)); errors.Is(got, live.ErrTransient) || errors.Is(got, live.ErrForbidden) {
		t.Errorf("400 classified as %v", got)
	}
}
