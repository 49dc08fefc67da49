// Package cache persists enrichment lookups (profile images and box art) in
// Redis so a restart does not re-query Helix for every streamer.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/livewatch/live"
)

const (
	avatarPrefix = "livewatch:avatar:"
	boxArtPrefix = "livewatch:boxart:"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// AvatarTTL bounds how long a profile image is reused. Box art uses BoxArtTTL.
	AvatarTTL time.Duration
	BoxArtTTL time.Duration
}

// ImageStore implements live.ImageStore on Redis string keys.
type ImageStore struct {
	client    *redis.Client
	avatarTTL time.Duration
	boxArtTTL time.Duration
}

// NewImageStore connects to Redis and verifies the connection.
func NewImageStore(ctx context.Context, cfg Config) (*ImageStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	slog.Info("connected to redis image store", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	return newImageStore(client, cfg), nil
}

func newImageStore(client *redis.Client, cfg Config) *ImageStore {
	s := &ImageStore{client: client, avatarTTL: cfg.AvatarTTL, boxArtTTL: cfg.BoxArtTTL}
	if s.avatarTTL <= 0 {
		s.avatarTTL = 24 * time.Hour
	}
	if s.boxArtTTL <= 0 {
		s.boxArtTTL = 7 * 24 * time.Hour
	}
	return s
}

func (s *ImageStore) Avatars(ctx context.Context, keys []live.Key) (map[live.Key]string, error) {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	found, err := s.mget(ctx, avatarPrefix, names)
	if err != nil {
		return nil, err
	}
	out := make(map[live.Key]string, len(found))
	for name, u := range found {
		out[live.Key(name)] = u
	}
	return out, nil
}

func (s *ImageStore) SaveAvatars(ctx context.Context, avatars map[live.Key]string) error {
	values := make(map[string]string, len(avatars))
	for k, u := range avatars {
		values[string(k)] = u
	}
	return s.mset(ctx, avatarPrefix, values, s.avatarTTL)
}

func (s *ImageStore) BoxArt(ctx context.Context, games []string) (map[string]string, error) {
	return s.mget(ctx, boxArtPrefix, games)
}

func (s *ImageStore) SaveBoxArt(ctx context.Context, art map[string]string) error {
	return s.mset(ctx, boxArtPrefix, art, s.boxArtTTL)
}

// Close closes the Redis connection.
func (s *ImageStore) Close() error { return s.client.Close() }

// HealthCheck pings Redis.
func (s *ImageStore) HealthCheck(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *ImageStore) mget(ctx context.Context, prefix string, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = prefix + n
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make(map[string]string, len(vals))
	for i, v := range vals {
		if str, ok := v.(string); ok && str != "" {
			out[names[i]] = str
		}
	}
	return out, nil
}

func (s *ImageStore) mset(ctx context.Context, prefix string, values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for name, u := range values {
		if u == "" {
			continue
		}
		pipe.Set(ctx, prefix+name, u, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ live.ImageStore = (*ImageStore)(nil)
