package live

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/onnwee/livewatch/twitchapi"
)

// PlatformTwitch is the streaming activity platform this service tracks.
const PlatformTwitch = "Twitch"

// ActivityKind tags an Activity.
type ActivityKind int

const (
	ActivityOther ActivityKind = iota
	ActivityStreaming
)

// Stream is the payload of a streaming activity. Username is empty when the
// chat platform did not report one.
type Stream struct {
	Platform  string
	Username  string
	Title     string
	Game      string
	URL       string
	StartedAt time.Time
}

// Activity is one presence activity of a member. Stream is set only for
// ActivityStreaming.
type Activity struct {
	Kind   ActivityKind
	Name   string
	Stream *Stream
}

// Member is a snapshot of a guild member.
type Member struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Roles       []string
	Activities  []Activity
}

func (m Member) HasRole(id string) bool { return id != "" && slices.Contains(m.Roles, id) }

func (m Member) HasAnyRole(ids []string) bool {
	for _, id := range ids {
		if m.HasRole(id) {
			return true
		}
	}
	return false
}

// Embed is the rich part of a live message.
type Embed struct {
	Title      string
	URL        string
	AuthorName string
	AuthorURL  string
	AuthorIcon string
	Thumbnail  string
	Footer     string
	FooterIcon string
	Color      int
	Timestamp  time.Time
}

// Message is a channel message as read back from history.
type Message struct {
	ID       string
	AuthorID string
	Content  string
	Embeds   []Embed
}

// Outgoing is a message body to send or edit in place.
type Outgoing struct {
	Content string
	Embed   Embed
}

// Chat is the chat platform. Implementations classify failures with
// ErrForbidden, ErrNotFound and ErrTransient.
type Chat interface {
	SelfID() string
	GuildMembers(ctx context.Context, guildID string) ([]Member, error)
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, channelID string, out Outgoing) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, out Outgoing) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

// Platform is the streaming platform, queried in batches of at most
// twitchapi.MaxBatch.
type Platform interface {
	GetStreams(ctx context.Context, logins []string) ([]twitchapi.Stream, error)
	GetUsers(ctx context.Context, logins []string) ([]twitchapi.User, error)
	GetGames(ctx context.Context, names []string) ([]twitchapi.Game, error)
}

// ImageStore persists enrichment lookups across restarts. Missing keys are
// simply absent from the returned maps.
type ImageStore interface {
	Avatars(ctx context.Context, keys []Key) (map[Key]string, error)
	SaveAvatars(ctx context.Context, avatars map[Key]string) error
	BoxArt(ctx context.Context, games []string) (map[string]string, error)
	SaveBoxArt(ctx context.Context, art map[string]string) error
}

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	ErrTransient = errors.New("transient chat error")
)
