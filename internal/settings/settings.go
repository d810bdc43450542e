// Package settings is the runtime key/value store. Values are strings,
// persisted as a flat YAML map, and fall back to the defaults provided by
// the query handler registered for the key's prefix.
package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/kuretru/hass-discovery-device/internal/utils"
)

var ErrUnknownKey = errors.New("settings: unknown key")

// QueryFunc returns the effective value of key, including its default, and
// whether the handler knows the key at all.
type QueryFunc func(key string) (string, bool)

type query struct {
	prefix string
	fn     QueryFunc
}

type Store struct {
	lock    sync.RWMutex
	path    string
	values  map[string]string
	queries []query
	reloads []func()
}

// Open loads path if it exists. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	store := &Store{path: path, values: make(map[string]string)}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Settings: read %v failed, %w", path, err)
	}
	if err = yaml.Unmarshal(data, &store.values); err != nil {
		return nil, fmt.Errorf("Settings: unmarshal %v failed, %w", path, err)
	}
	if store.values == nil {
		store.values = make(map[string]string)
	}
	return store, nil
}

// Get returns the stored value of key.
func (s *Store) Get(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *Store) GetString(key, fallback string) string {
	if value, ok := s.Get(key); ok {
		return value
	}
	return fallback
}

func (s *Store) GetBool(key string, fallback bool) bool {
	if value, ok := s.Get(key); ok {
		return utils.ParseBoolOrDefault(value, fallback)
	}
	return fallback
}

func (s *Store) Set(key, value string) error {
	if key == "" {
		return ErrUnknownKey
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[key] = value
	return s.save()
}

// Delete removes key and reports whether it was stored.
func (s *Store) Delete(key string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.values[key]; !ok {
		return false, nil
	}
	delete(s.values, key)
	return true, s.save()
}

// Keys lists the stored keys in order.
func (s *Store) Keys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RegisterQuery routes keys starting with prefix to fn.
func (s *Store) RegisterQuery(prefix string, fn QueryFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.queries = append(s.queries, query{prefix: prefix, fn: fn})
}

// Query returns the effective value of key: the handler of its prefix is
// asked first, the raw stored value is the fallback.
func (s *Store) Query(key string) (string, error) {
	s.lock.RLock()
	queries := s.queries
	s.lock.RUnlock()

	for _, q := range queries {
		if !strings.HasPrefix(key, q.prefix) {
			continue
		}
		if value, ok := q.fn(key); ok {
			return value, nil
		}
	}
	if value, ok := s.Get(key); ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %v", ErrUnknownKey, key)
}

// OnReload registers fn to be called by Reload.
func (s *Store) OnReload(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.reloads = append(s.reloads, fn)
}

// Reload runs every reload hook in registration order.
func (s *Store) Reload() {
	s.lock.RLock()
	reloads := s.reloads
	s.lock.RUnlock()
	for _, fn := range reloads {
		fn()
	}
}

// Dump writes every stored key as "key => value".
func (s *Store) Dump(w io.Writer) {
	for _, key := range s.Keys() {
		value, _ := s.Get(key)
		_, _ = fmt.Fprintf(w, "%v => %q\n", key, value)
	}
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("Settings: marshal failed, %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("Settings: create directory failed, %w", err)
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("Settings: write %v failed, %w", tmp, err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("Settings: rename %v failed, %w", tmp, err)
	}
	return nil
}

const identifierFile = "instance_id"

// LoadOrCreateIdentifier returns the identifier stored in dataDir, creating
// a time-ordered UUID on first use.
func LoadOrCreateIdentifier(dataDir string) (string, error) {
	path := filepath.Join(dataDir, identifierFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id, parseErr := uuid.Parse(strings.TrimSpace(string(data))); parseErr == nil {
			return id.String(), nil
		}
		slog.Warn("Settings: stored identifier is invalid, regenerating", "path", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("Settings: read %v failed, %w", path, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("Settings: generate identifier failed, %w", err)
	}
	if err = os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("Settings: create %v failed, %w", dataDir, err)
	}
	if err = os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("Settings: write %v failed, %w", path, err)
	}
	slog.Info("Settings: created device identifier", "id", id.String())
	return id.String(), nil
}
