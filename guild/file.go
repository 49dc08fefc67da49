package guild

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// fileDoc is the on-disk layout of a FileStore.
type fileDoc struct {
	Guilds map[string]Config `yaml:"guilds"`
}

// FileStore keeps every guild in one YAML file. Writes replace the file
// atomically, and Watch picks up edits made by hand or by another process.
type FileStore struct {
	path string

	mu      sync.RWMutex
	configs map[string]Config
}

// OpenFileStore loads path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: filepath.Clean(path), configs: map[string]Config{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read guild file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse guild file %s: %w", s.path, err)
	}
	configs := make(map[string]Config, len(doc.Guilds))
	for id, c := range doc.Guilds {
		c.ID = id
		c.Normalize()
		configs[id] = c
	}
	s.mu.Lock()
	s.configs = configs
	s.mu.Unlock()
	return nil
}

func (s *FileStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Get(_ context.Context, id string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return Default(id), nil
	}
	return c.Clone(), nil
}

func (s *FileStore) Put(_ context.Context, cfg Config) error {
	cfg.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := fileDoc{Guilds: make(map[string]Config, len(s.configs)+1)}
	for id, c := range s.configs {
		doc.Guilds[id] = c
	}
	doc.Guilds[cfg.ID] = cfg.Clone()
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode guild file: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write guild file: %w", err)
	}
	s.configs = doc.Guilds
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. Invalid edits
// are logged and the previous configuration is kept.
func (s *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	// Atomic writes replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch guild file: %w", err)
	}
	slog.Info("watching guild file", slog.String("path", s.path))

	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(debounce)
		case <-timer.C:
			if err := s.reload(); err != nil {
				slog.Error("guild file reload failed; keeping previous configuration", slog.Any("err", err))
				continue
			}
			slog.Info("guild file reloaded", slog.String("path", s.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("guild file watcher error", slog.Any("err", err))
		}
	}
}

var _ Store = (*FileStore)(nil)
