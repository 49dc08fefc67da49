package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/live"
	"github.com/onnwee/livewatch/twitchapi"
)

// GameLookup resolves category names to Helix games.
type GameLookup interface {
	GetGames(ctx context.Context, names []string) ([]twitchapi.Game, error)
}

type deps struct {
	open func(ctx context.Context) (guild.Store, func(), error)
	// games validates categories. Nil accepts any name as typed.
	games GameLookup
	out   io.Writer
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "guildctl",
		Short:         "Edit livewatch guild configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetOut(d.out)
	root.AddCommand(
		listCmd(d),
		showCmd(d),
		channelCmd(d),
		liveRoleCmd(d),
		streamerRoleCmd(d),
		mutedRoleCmd(d),
		streamerCmd(d),
		categoryCmd(d),
	)
	return root
}

// withStore opens the store for one command.
func (d deps) withStore(ctx context.Context, fn func(guild.Store) error) error {
	store, closeFn, err := d.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(store)
}

// edit loads a guild, applies fn and writes it back.
func (d deps) edit(cmd *cobra.Command, guildID string, fn func(*guild.Config) error) error {
	ctx := cmd.Context()
	return d.withStore(ctx, func(s guild.Store) error {
		cfg, err := s.Get(ctx, guildID)
		if err != nil {
			return err
		}
		if err := fn(&cfg); err != nil {
			return err
		}
		return s.Put(ctx, cfg)
	})
}

func (d deps) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

func listCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured guilds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return d.withStore(ctx, func(s guild.Store) error {
				ids, err := s.ListIDs(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					cfg, err := s.Get(ctx, id)
					if err != nil {
						return err
					}
					state := "inactive"
					if cfg.Active() {
						state = "channel=" + cfg.ChannelID
					}
					roles := cfg.StreamerRoleIDs()
					for i, r := range roles {
						if cfg.StreamerRoles[r] {
							roles[i] = r + "*"
						}
					}
					d.printf("%s\t%s\t%s\troles=%s\tstreamers=%d\n", id, cfg.Name, state, strings.Join(roles, ","), len(cfg.Streamers))
				}
				return nil
			})
		},
	}
}

func showCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <guild-id>",
		Short: "Print a guild's configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return d.withStore(ctx, func(s guild.Store) error {
				cfg, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = d.out.Write(out)
				return err
			})
		},
	}
}

func channelCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "channel <guild-id> [channel-id]",
		Short: "Set the live message channel; omit the channel to disable the guild",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := optionalArg(args, 1)
			return d.edit(cmd, args[0], func(c *guild.Config) error {
				c.ChannelID = ch
				return nil
			})
		},
	}
}

func liveRoleCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "live-role <guild-id> [role-id]",
		Short: "Set the role granted while live; omit the role to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := optionalArg(args, 1)
			return d.edit(cmd, args[0], func(c *guild.Config) error {
				c.LiveRoleID = role
				return nil
			})
		},
	}
}

func streamerRoleCmd(d deps) *cobra.Command {
	var filtered bool
	cmd := &cobra.Command{Use: "streamer-role", Short: "Manage roles whose members are announced"}
	add := &cobra.Command{
		Use:  "add <guild-id> <role-id>",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.edit(cmd, args[0], func(c *guild.Config) error {
				c.AddStreamerRole(args[1], filtered)
				return nil
			})
		},
	}
	set := &cobra.Command{
		Use:   "set <guild-id> <role-id>",
		Short: "Replace all streamer roles with one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.edit(cmd, args[0], func(c *guild.Config) error {
				c.SetStreamerRole(args[1], filtered)
				return nil
			})
		},
	}
	remove := &cobra.Command{
		Use:  "remove <guild-id> <role-id>",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.edit(cmd, args[0], func(c *guild.Config) error {
				return wrap("streamer role", args[1], c.RemoveStreamerRole(args[1]))
			})
		},
	}
	for _, c := range []*cobra.Command{add, set} {
		c.Flags().BoolVar(&filtered, "filtered", false, "apply the category allow-list to members of this role")
	}
	cmd.AddCommand(add, set, remove)
	return cmd
}

func mutedRoleCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{Use: "muted-role", Short: "Manage roles whose members are never announced"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "add <guild-id> <role-id>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return d.edit(cmd, args[0], func(c *guild.Config) error {
					return wrap("muted role", args[1], c.AddMutedRole(args[1]))
				})
			},
		},
		&cobra.Command{
			Use:  "remove <guild-id> <role-id>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return d.edit(cmd, args[0], func(c *guild.Config) error {
					return wrap("muted role", args[1], c.RemoveMutedRole(args[1]))
				})
			},
		},
	)
	return cmd
}

func streamerCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{Use: "streamer", Short: "Manage the Twitch watch-list"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <guild-id> <name|@name|twitch.tv/name>",
			Short: "Watch a Twitch channel",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, ok := live.ParseUsername(args[1])
				if !ok {
					return fmt.Errorf("invalid twitch username %q", args[1])
				}
				err := d.edit(cmd, args[0], func(c *guild.Config) error {
					return wrap("streamer", name, c.AddStreamer(name))
				})
				if err == nil {
					d.printf("watching %s\n", name)
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "remove <guild-id> <name>",
			Short: "Stop watching a Twitch channel",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, ok := live.ParseUsername(args[1])
				if !ok {
					return fmt.Errorf("invalid twitch username %q", args[1])
				}
				return d.edit(cmd, args[0], func(c *guild.Config) error {
					entry, found := c.LookupStreamer(name)
					if !found {
						return wrap("streamer", name, guild.ErrMissing)
					}
					return c.RemoveStreamer(entry)
				})
			},
		},
	)
	return cmd
}

func categoryCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{Use: "category", Short: "Manage the category allow-list"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <guild-id> <category...>",
			Short: "Allow a Twitch category (validated against Helix when credentials exist)",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := d.resolveCategory(cmd.Context(), strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				err = d.edit(cmd, args[0], func(c *guild.Config) error {
					return wrap("category", name, c.AddCategory(name))
				})
				if err == nil {
					d.printf("allowed %s\n", name)
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "remove <guild-id> <category...>",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := strings.Join(args[1:], " ")
				return d.edit(cmd, args[0], func(c *guild.Config) error {
					for _, e := range c.Categories {
						if strings.EqualFold(e, name) {
							return c.RemoveCategory(e)
						}
					}
					return wrap("category", name, guild.ErrMissing)
				})
			},
		},
	)
	return cmd
}

// resolveCategory returns Helix's spelling of name, or name unchanged when no
// Helix client is configured.
func (d deps) resolveCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty category")
	}
	if d.games == nil {
		return name, nil
	}
	games, err := d.games.GetGames(ctx, []string{name})
	if err != nil {
		return "", fmt.Errorf("look up category %q: %w", name, err)
	}
	for _, g := range games {
		if strings.EqualFold(g.Name, name) {
			return g.Name, nil
		}
	}
	return "", fmt.Errorf("unknown twitch category %q", name)
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func wrap(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %q: %w", kind, name, err)
}
