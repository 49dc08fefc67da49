// Command livewatch is the main entrypoint for the live-stream announcer.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the guild configuration store (Postgres, a YAML file, or memory).
//   - Connects the Discord bot and, when Twitch credentials exist, the Helix client.
//   - Runs the reconciler on a fixed interval and reacts to presence updates.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics and /admin/tick.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/livewatch/cache"
	"github.com/onnwee/livewatch/config"
	"github.com/onnwee/livewatch/db"
	"github.com/onnwee/livewatch/discord"
	"github.com/onnwee/livewatch/guild"
	"github.com/onnwee/livewatch/live"
	"github.com/onnwee/livewatch/server"
	"github.com/onnwee/livewatch/telemetry"
	"github.com/onnwee/livewatch/twitchapi"
)

var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("livewatch", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("livewatch exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger (level + format). Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	var checks []server.ReadyCheck

	store, database, fileStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		checks = append(checks, server.ReadyCheck{Name: "database", Check: database.PingContext})
	}
	if fileStore != nil {
		g.Go(func() error { return fileStore.Watch(ctx) })
	}

	opts := []live.Option{
		live.WithHistoryLimit(cfg.HistoryLimit),
		live.WithMemberScanEvery(cfg.MemberScanEvery),
		live.WithAvatarTTL(cfg.AvatarTTL),
	}
	if cfg.RedisAddr != "" {
		images, err := cache.NewImageStore(ctx, cache.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			AvatarTTL: cfg.AvatarTTL,
		})
		if err != nil {
			slog.Warn("redis unavailable, enrichment is not persisted", slog.Any("err", err))
		} else {
			defer func() { _ = images.Close() }()
			opts = append(opts, live.WithImageStore(images))
			checks = append(checks, server.ReadyCheck{Name: "redis", Check: images.HealthCheck})
		}
	}

	// A nil interface, not a typed nil, disables polling.
	var platform live.Platform
	if cfg.TwitchEnabled() {
		platform = twitchapi.NewHelixClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.HelixRatePerMinute)
	} else {
		slog.Warn("twitch credentials missing (TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET); running chat-side only, no polling")
	}

	bot, err := discord.New(cfg.DiscordToken)
	if err != nil {
		return err
	}
	rec := live.New(bot, platform, store, opts...)
	if err := bot.Open(ctx, rec); err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()
	checks = append([]server.ReadyCheck{{Name: "discord", Check: func(context.Context) error {
		if !bot.Ready() {
			return errors.New("gateway not ready")
		}
		return nil
	}}}, checks...)

	sched := live.NewScheduler(rec, cfg.TickInterval)
	g.Go(func() error { return sched.Run(ctx) })

	handler := server.NewRouter(server.Options{
		Status:         rec,
		Ticker:         sched,
		Checks:         checks,
		AdminToken:     cfg.AdminToken,
		TracingService: "livewatch-http",
	})
	g.Go(func() error { return server.Start(ctx, cfg.HTTPAddr, handler) })

	return g.Wait()
}

// openStore picks the guild configuration backend: Postgres when DB_DSN is
// set, else the YAML file at GUILDS_FILE, else an empty in-memory store.
func openStore(ctx context.Context, cfg *config.Config) (guild.Store, *sql.DB, *guild.FileStore, error) {
	switch {
	case cfg.DBDsn != "":
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open db: %w", err)
		}
		if err := db.Setup(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, nil, err
		}
		slog.Info("guild configuration store", slog.String("backend", "postgres"))
		return db.NewGuildStore(database), database, nil, nil
	case cfg.GuildsFile != "":
		fs, err := guild.OpenFileStore(cfg.GuildsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("guild configuration store", slog.String("backend", "file"), slog.String("path", cfg.GuildsFile))
		return fs, nil, fs, nil
	default:
		slog.Warn("no DB_DSN or GUILDS_FILE configured; guild configuration is in-memory and empty")
		return guild.NewMemoryStore(), nil, nil, nil
	}
}
