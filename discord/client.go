// Package discord adapts a discordgo session to live.Chat and feeds gateway
// presence and member updates to the incremental updater.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/livewatch/live"
)

// historyPage is the most messages Discord returns per history request.
const historyPage = 100

// Intents are the gateway intents the service needs. Members and presences
// are privileged and must be enabled for the bot.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages

// PresenceHandler receives member changes between ticks.
type PresenceHandler interface {
	HandlePresence(ctx context.Context, guildID string, m live.Member)
}

// Client implements live.Chat over a discordgo session.
type Client struct {
	s *discordgo.Session
}

// New creates a bot session. The gateway is not opened until Open.
func New(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackPresences = true
	return &Client{s: s}, nil
}

// Open connects to the gateway. Presence and member updates are forwarded to
// h with ctx until the session is closed.
func (c *Client) Open(ctx context.Context, h PresenceHandler) error {
	c.s.AddHandler(func(s *discordgo.Session, e *discordgo.Ready) {
		slog.Info("discord gateway ready", slog.String("user", e.User.Username), slog.Int("guilds", len(e.Guilds)))
	})
	c.s.AddHandler(func(s *discordgo.Session, e *discordgo.GuildCreate) {
		// Large guilds only send a partial member list; ask for the rest with presences.
		if err := s.RequestGuildMembers(e.ID, "", 0, "", true); err != nil {
			slog.Warn("request guild members failed", slog.String("guild", e.ID), slog.Any("err", err))
		}
	})
	if h != nil {
		c.s.AddHandler(func(s *discordgo.Session, e *discordgo.PresenceUpdate) {
			if e.User == nil {
				return
			}
			m, err := s.State.Member(e.GuildID, e.User.ID)
			if err != nil {
				slog.Debug("presence for unknown member", slog.String("guild", e.GuildID), slog.String("member", e.User.ID))
				return
			}
			h.HandlePresence(ctx, e.GuildID, c.snapshot(e.GuildID, m))
		})
		c.s.AddHandler(func(s *discordgo.Session, e *discordgo.GuildMemberUpdate) {
			if e.Member == nil || e.User == nil {
				return
			}
			h.HandlePresence(ctx, e.GuildID, c.snapshot(e.GuildID, e.Member))
		})
	}
	if err := c.s.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error { return c.s.Close() }

// Ready reports whether the gateway session is up.
func (c *Client) Ready() bool { return c.s.DataReady }

func (c *Client) snapshot(guildID string, m *discordgo.Member) live.Member {
	var p *discordgo.Presence
	if m.User != nil {
		p, _ = c.s.State.Presence(guildID, m.User.ID)
	}
	c.s.State.RLock()
	defer c.s.State.RUnlock()
	return convertMember(m, p)
}

func (c *Client) SelfID() string {
	if c.s.State == nil || c.s.State.User == nil {
		return ""
	}
	return c.s.State.User.ID
}

// GuildMembers reads the member snapshot from gateway state.
func (c *Client) GuildMembers(_ context.Context, guildID string) ([]live.Member, error) {
	g, err := c.s.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: guild %s not in state: %w", live.ErrTransient, guildID, err)
	}
	c.s.State.RLock()
	defer c.s.State.RUnlock()
	presences := make(map[string]*discordgo.Presence, len(g.Presences))
	for _, p := range g.Presences {
		if p != nil && p.User != nil {
			presences[p.User.ID] = p
		}
	}
	out := make([]live.Member, 0, len(g.Members))
	for _, m := range g.Members {
		if m == nil || m.User == nil || m.User.Bot {
			continue
		}
		out = append(out, convertMember(m, presences[m.User.ID]))
	}
	return out, nil
}

// ChannelHistory returns up to limit messages, newest first.
func (c *Client) ChannelHistory(ctx context.Context, channelID string, limit int) ([]live.Message, error) {
	var out []live.Message
	before := ""
	for len(out) < limit {
		n := min(historyPage, limit-len(out))
		msgs, err := c.s.ChannelMessages(channelID, n, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err)
		}
		for _, m := range msgs {
			out = append(out, convertMessage(m))
		}
		if len(msgs) < n {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, out live.Outgoing) (string, error) {
	m, err := c.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: out.Content,
		Embeds:  []*discordgo.MessageEmbed{toEmbed(out.Embed)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return m.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, out live.Outgoing) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).
		SetContent(out.Content).
		SetEmbed(toEmbed(out.Embed))
	_, err := c.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return classify(err)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify(c.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return classify(c.s.GuildMemberRoleAdd(guildID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return classify(c.s.GuildMemberRoleRemove(guildID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

var _ live.Chat = (*Client)(nil)
