package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/livewatch/live"
)

// twitchAssetPrefix marks the large image of a Twitch streaming activity,
// e.g. "twitch:somelogin".
const twitchAssetPrefix = "twitch:"

// convertActivity maps a gateway activity onto the tagged live.Activity.
// Discord reports the platform in Name, the stream title in Details and the
// game in State.
func convertActivity(a *discordgo.Activity) live.Activity {
	if a == nil {
		return live.Activity{}
	}
	out := live.Activity{Kind: live.ActivityOther, Name: a.Name}
	if a.Type != discordgo.ActivityTypeStreaming {
		return out
	}
	out.Kind = live.ActivityStreaming
	out.Stream = &live.Stream{
		Platform:  a.Name,
		Title:     a.Details,
		Game:      a.State,
		URL:       a.URL,
		StartedAt: a.CreatedAt,
	}
	if rest, ok := strings.CutPrefix(a.Assets.LargeImageID, twitchAssetPrefix); ok {
		out.Stream.Username = rest
	}
	return out
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// convertMember joins a member with its presence, which may be nil.
func convertMember(m *discordgo.Member, p *discordgo.Presence) live.Member {
	out := live.Member{
		DisplayName: displayName(m),
		Roles:       append([]string(nil), m.Roles...),
	}
	if m.User != nil {
		out.ID = m.User.ID
		out.AvatarURL = m.User.AvatarURL("")
	}
	if p != nil {
		for _, a := range p.Activities {
			out.Activities = append(out.Activities, convertActivity(a))
		}
	}
	return out
}

func convertMessage(m *discordgo.Message) live.Message {
	out := live.Message{ID: m.ID, Content: m.Content}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		em := live.Embed{Title: e.Title, URL: e.URL, Color: e.Color}
		if e.Author != nil {
			em.AuthorName = e.Author.Name
			em.AuthorURL = e.Author.URL
			em.AuthorIcon = e.Author.IconURL
		}
		if e.Thumbnail != nil {
			em.Thumbnail = e.Thumbnail.URL
		}
		if e.Footer != nil {
			em.Footer = e.Footer.Text
			em.FooterIcon = e.Footer.IconURL
		}
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			em.Timestamp = ts
		}
		out.Embeds = append(out.Embeds, em)
	}
	return out
}

func toEmbed(e live.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title: e.Title,
		URL:   e.URL,
		Color: e.Color,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    e.AuthorName,
			URL:     e.AuthorURL,
			IconURL: e.AuthorIcon,
		},
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Footer != "" || e.FooterIcon != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer, IconURL: e.FooterIcon}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}
