// Package guild holds the per-guild configuration record the reconciler reads
// on every tick, along with the Store interface persistence layers implement.
//
// Configuration is normalized once when it is loaded (legacy fields migrated,
// nil collections replaced, "0" ids cleared) so callers never have to check
// for missing keys at the use site.
package guild

import (
	"errors"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// MaxStreamers bounds a guild's watch-list to a single Helix query.
const MaxStreamers = 100

var (
	ErrDuplicate = errors.New("already present")
	ErrMissing   = errors.New("not found")
	ErrListFull  = errors.New("watch-list is full")
)

// Config is the editable configuration of one guild.
type Config struct {
	ID   string `json:"-" yaml:"-"`
	Name string `json:"name" yaml:"name"`

	// ChannelID is where live messages are posted. Empty disables the guild.
	ChannelID string `json:"channel_id" yaml:"channel_id"`
	// LiveRoleID is granted to streamer members while they are live. Optional.
	LiveRoleID string `json:"live_role_id" yaml:"live_role_id"`

	// StreamerRoles maps a role id to whether the category allow-list applies
	// to members holding it.
	StreamerRoles map[string]bool `json:"streamer_roles" yaml:"streamer_roles"`
	// StreamerRoleID is the pre-multi-role single streamer role, migrated into
	// StreamerRoles by Normalize.
	StreamerRoleID string `json:"streamer_role_id,omitempty" yaml:"streamer_role_id,omitempty"`

	MutedRoles []string `json:"muted_role_list" yaml:"muted_role_list"`
	Streamers  []string `json:"twitch_streamer_list" yaml:"twitch_streamer_list"`
	Categories []string `json:"twitch_category_list" yaml:"twitch_category_list"`
}

// Default returns the configuration of a guild nobody has configured yet.
func Default(id string) Config {
	c := Config{ID: id}
	c.Normalize()
	return c
}

// Normalize migrates legacy fields and fills defaults in place.
func (c *Config) Normalize() {
	c.ChannelID = cleanID(c.ChannelID)
	c.LiveRoleID = cleanID(c.LiveRoleID)
	legacy := cleanID(c.StreamerRoleID)
	if c.StreamerRoles == nil {
		c.StreamerRoles = map[string]bool{}
		if legacy != "" {
			c.StreamerRoles[legacy] = false
		}
	}
	c.StreamerRoleID = ""
	for id, filtered := range c.StreamerRoles {
		if clean := cleanID(id); clean != id {
			delete(c.StreamerRoles, id)
			if clean != "" {
				c.StreamerRoles[clean] = filtered
			}
		}
	}
	if c.MutedRoles == nil {
		c.MutedRoles = []string{}
	}
	if c.Categories == nil {
		c.Categories = []string{}
	}
	c.Streamers = dedupeFold(c.Streamers)
}

// Active reports whether the guild has an output channel configured.
func (c Config) Active() bool { return c.ChannelID != "" }

// HasLiveRole reports whether a live role is configured.
func (c Config) HasLiveRole() bool { return c.LiveRoleID != "" }

// AllowsCategory reports whether game passes the category allow-list.
// An empty allow-list allows everything.
func (c Config) AllowsCategory(game string) bool {
	return len(c.Categories) == 0 || slices.Contains(c.Categories, game)
}

// StreamerRoleIDs returns the configured streamer role ids in stable order.
func (c Config) StreamerRoleIDs() []string {
	ids := make([]string, 0, len(c.StreamerRoles))
	for id := range c.StreamerRoles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.StreamerRoles = make(map[string]bool, len(c.StreamerRoles))
	for k, v := range c.StreamerRoles {
		out.StreamerRoles[k] = v
	}
	out.MutedRoles = slices.Clone(c.MutedRoles)
	out.Streamers = slices.Clone(c.Streamers)
	out.Categories = slices.Clone(c.Categories)
	return out
}

// Fold is the case-insensitive identity of a streamer login or category.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// LookupStreamer returns the watch-list entry matching name case-insensitively.
func (c Config) LookupStreamer(name string) (string, bool) {
	k := Fold(name)
	for _, s := range c.Streamers {
		if Fold(s) == k {
			return s, true
		}
	}
	return "", false
}

// AddStreamer appends name to the watch-list.
func (c *Config) AddStreamer(name string) error {
	if _, ok := c.LookupStreamer(name); ok {
		return ErrDuplicate
	}
	if len(c.Streamers) >= MaxStreamers {
		return ErrListFull
	}
	c.Streamers = append(c.Streamers, name)
	sortFold(c.Streamers)
	return nil
}

// RemoveStreamer removes the exact entry name from the watch-list.
func (c *Config) RemoveStreamer(name string) error {
	i := slices.Index(c.Streamers, name)
	if i < 0 {
		return ErrMissing
	}
	c.Streamers = slices.Delete(c.Streamers, i, i+1)
	return nil
}

// AddCategory appends a category to the allow-list.
func (c *Config) AddCategory(name string) error {
	k := Fold(name)
	for _, e := range c.Categories {
		if Fold(e) == k {
			return ErrDuplicate
		}
	}
	c.Categories = append(c.Categories, name)
	sortFold(c.Categories)
	return nil
}

// RemoveCategory removes the exact category name from the allow-list.
func (c *Config) RemoveCategory(name string) error {
	i := slices.Index(c.Categories, name)
	if i < 0 {
		return ErrMissing
	}
	c.Categories = slices.Delete(c.Categories, i, i+1)
	return nil
}

// SetStreamerRole replaces all streamer roles with roleID.
func (c *Config) SetStreamerRole(roleID string, filtered bool) {
	c.StreamerRoles = map[string]bool{roleID: filtered}
}

// AddStreamerRole adds or updates a streamer role.
func (c *Config) AddStreamerRole(roleID string, filtered bool) {
	if c.StreamerRoles == nil {
		c.StreamerRoles = map[string]bool{}
	}
	c.StreamerRoles[roleID] = filtered
}

// RemoveStreamerRole removes a streamer role.
func (c *Config) RemoveStreamerRole(roleID string) error {
	if _, ok := c.StreamerRoles[roleID]; !ok {
		return ErrMissing
	}
	delete(c.StreamerRoles, roleID)
	return nil
}

// AddMutedRole adds a role whose members are never shown.
func (c *Config) AddMutedRole(roleID string) error {
	if slices.Contains(c.MutedRoles, roleID) {
		return ErrDuplicate
	}
	c.MutedRoles = append(c.MutedRoles, roleID)
	sort.Strings(c.MutedRoles)
	return nil
}

// RemoveMutedRole removes a muted role.
func (c *Config) RemoveMutedRole(roleID string) error {
	i := slices.Index(c.MutedRoles, roleID)
	if i < 0 {
		return ErrMissing
	}
	c.MutedRoles = slices.Delete(c.MutedRoles, i, i+1)
	return nil
}

func cleanID(id string) string {
	id = strings.TrimSpace(id)
	if id == "0" {
		return ""
	}
	return id
}

func dedupeFold(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := Fold(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sortFold(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return Fold(s[i]) < Fold(s[j]) })
}
