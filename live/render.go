package live

import (
	"regexp"
	"strings"

	"github.com/onnwee/livewatch/guild"
)

// EmbedColor is the purple used for live embeds.
const EmbedColor = 0x9b59b6

var markdownRe = regexp.MustCompile("(?m)[_\\\\~|*`]|^>(?:>>)?\\s|\\[.+\\]\\(.+\\)|^#{1,3}|^\\s*-")

// EscapeMarkdown backslash-escapes Discord markdown in s.
func EscapeMarkdown(s string) string {
	return markdownRe.ReplaceAllStringFunc(s, func(m string) string { return `\` + m })
}

var linkBreaker = strings.NewReplacer(
	"://", "\u200b:\u200b/\u200b/\u200b",
	".", "\u200b.\u200b",
)

// Plain escapes markdown and breaks anything Discord would auto-link.
func Plain(s string) string {
	return linkBreaker.Replace(EscapeMarkdown(s))
}

// render builds the live message for k. Requires r.mu.
func (r *Reconciler) render(cfg guild.Config, k Key, rec *GroupRecord, g *GlobalRecord) Outgoing {
	game := Plain(g.Game)
	thumb := g.Thumbnail
	if thumb == "" {
		thumb = r.enrich.Thumbnail(k)
	}
	icon := rec.Avatar
	if icon == "" {
		icon = g.ProfileImage
	}
	gameIcon := g.GameImage
	if gameIcon == "" {
		gameIcon, _ = r.enrich.BoxArt(g.Game)
	}
	return Outgoing{
		Content: "**" + Plain(rec.DisplayName) + "** is live! Playing " + game,
		Embed: Embed{
			Title:      Plain(g.Title),
			URL:        g.URL,
			AuthorName: RecoverCase(k, cfg.Streamers, g.Login),
			AuthorURL:  g.URL,
			AuthorIcon: icon,
			Thumbnail:  thumb,
			Footer:     game,
			FooterIcon: gameIcon,
			Color:      EmbedColor,
			Timestamp:  g.StartedAt,
		},
	}
}
