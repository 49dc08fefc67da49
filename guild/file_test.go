package guild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `guilds:
  "100":
    name: Test Guild
    channel_id: "200"
    live_role_id: "0"
    streamer_role_id: "300"
    twitch_streamer_list: [Alice, alice, bob]
`

func TestFileStoreLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := s.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, ids)

	cfg, err := s.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "100", cfg.ID)
	assert.Equal(t, "200", cfg.ChannelID)
	assert.Empty(t, cfg.LiveRoleID)
	assert.Equal(t, map[string]bool{"300": false}, cfg.StreamerRoles)
	assert.Equal(t, []string{"Alice", "bob"}, cfg.Streamers)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, Default("nope"), missing)
}

func TestFileStoreMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	ids, err := s.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("guilds: [not, a, map"), 0o600))
	_, err = OpenFileStore(bad)
	assert.Error(t, err)
}

func TestFileStorePutPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	cfg := Default("g1")
	cfg.ChannelID = "c1"
	require.NoError(t, cfg.AddStreamer("FooBar"))
	require.NoError(t, s.Put(ctx, cfg))
	require.NoError(t, s.Put(ctx, Config{ID: "g2"}))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	ids, err := reopened.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
}

func TestFileStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))
	s, err := OpenFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		assert.True(t, errors.Is(<-done, context.Canceled))
	}()

	updated := sampleFile + `  "101":
    channel_id: "201"
`
	require.Eventually(t, func() bool {
		// Rewrite until the watcher is registered and picks it up.
		_ = renameio.WriteFile(path, []byte(updated), 0o600)
		ids, _ := s.ListIDs(context.Background())
		return len(ids) == 2
	}, 5*time.Second, 300*time.Millisecond)

	cfg, err := s.Get(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "201", cfg.ChannelID)
}
