// Command guildctl edits guild configuration in the same store the service
// reads (Postgres when DB_DSN is set, else the YAML file at GUILDS_FILE).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/livewatch/config"
	"github.com/onnwee/livewatch/db"
	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/twitchapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	d := deps{open: storeOpener(cfg), out: os.Stdout}
	if cfg.TwitchEnabled() {
		d.games = twitchapi.NewHelixClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.HelixRatePerMinute)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(d).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func storeOpener(cfg *config.Config) func(context.Context) (guild.Store, func(), error) {
	return func(ctx context.Context) (guild.Store, func(), error) {
		switch {
		case cfg.DBDsn != "":
			database, err := db.Connect(ctx, cfg.DBDsn)
			if err != nil {
				return nil, nil, err
			}
			if err := db.Setup(ctx, database); err != nil {
				_ = database.Close()
				return nil, nil, err
			}
			return db.NewGuildStore(database), func() { _ = database.Close() }, nil
		case cfg.GuildsFile != "":
			fs, err := guild.OpenFileStore(cfg.GuildsFile)
			if err != nil {
				return nil, nil, err
			}
			return fs, func() {}, nil
		default:
			return nil, nil, errors.New("no guild store configured: set DB_DSN or GUILDS_FILE")
		}
	}
}
