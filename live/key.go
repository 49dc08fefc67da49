package live

import (
	"regexp"

	"github.com/onnwee/livewatch/guild"
)

// Key is the case-folded Twitch login identifying a streamer.
type Key string

// KeyOf folds login into a Key.
func KeyOf(login string) Key {
	return Key(guild.Fold(login))
}

// RecoverCase returns the entry of list that folds to k, else fallback, else k itself.
func RecoverCase(k Key, list []string, fallback string) string {
	for _, e := range list {
		if KeyOf(e) == k {
			return e
		}
	}
	if fallback != "" && KeyOf(fallback) == k {
		return fallback
	}
	return string(k)
}

var usernameRe = regexp.MustCompile(`^\s*(?:.*@|.*twitch\.tv/)?(\w+)(?:[/?#]\S*)?\s*$`)

// ParseUsername extracts a Twitch login from "name", "@name" or a channel URL.
// A trailing path, query or fragment after the login is ignored.
func ParseUsername(s string) (string, bool) {
	m := usernameRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}
