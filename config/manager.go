package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EnvConfigPath points the manager at a config file when no path is given.
const EnvConfigPath = "CHAT2VIS_CONFIG"

// reloadDelay collapses the burst of events editors emit for one save.
const reloadDelay = 300 * time.Millisecond

// Manager owns the config file. It is the only writer of the file; changes
// made by hand are picked up by Watch.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
	watching bool
}

type managerOptions struct {
	configPath string
}

type ManagerOption func(*managerOptions)

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

// NewManager opens the config file, writing defaults rooted next to it on
// first use. The path is, in order: WithConfigPath, $CHAT2VIS_CONFIG, then
// <user config dir>/chat2vis/config.json.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	var options managerOptions
	for _, opt := range opts {
		opt(&options)
	}

	path, err := resolvePath(options.configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := readConfig(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = *DefaultConfigWithRoot(filepath.Dir(path))
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	case err != nil:
		return nil, err
	}

	return &Manager{path: path, cfg: cfg}, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "chat2vis", "config.json"), nil
}

// Get returns the config as stored in the file, without env overrides.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON applies a full or partial JSON document on top of the
// current config.
func (m *Manager) UpdateFromJSON(doc string) error {
	cfg := m.Get()
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return m.Update(cfg)
}

// Set changes one field addressed by its JSON name. String and duration
// fields take value verbatim; other fields parse it as JSON.
func (m *Manager) Set(key, value string) error {
	current, err := json.Marshal(m.Get())
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(current, &fields); err != nil {
		return err
	}
	old, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
	}

	raw := json.RawMessage(value)
	if len(old) > 0 && old[0] == '"' {
		if raw, err = json.Marshal(value); err != nil {
			return err
		}
	} else if !json.Valid(raw) {
		return fmt.Errorf("%w: %s expects a JSON value, got %q", ErrInvalidConfig, key, value)
	}

	patch, err := json.Marshal(map[string]json.RawMessage{key: raw})
	if err != nil {
		return err
	}
	return m.UpdateFromJSON(string(patch))
}

// Update validates cfg, writes it and notifies the watcher callback. An
// unchanged config is a no-op.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return nil
	}
	if err := writeConfigFile(m.path, cfg); err != nil {
		return err
	}
	m.apply(cfg)
	return nil
}

// Watch calls onChange whenever the stored config changes, through Update or
// through an edit of the file, until ctx is done. Only one callback is kept.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// The directory is watched because atomic saves replace the file.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] watcher error: %v", err)
		case <-timer.C:
			m.reload()
		}
	}
}

// reload picks up an edit of the file. A broken or invalid file is logged
// and ignored; a deleted one is written back from the current config.
func (m *Manager) reload() {
	cfg, err := readConfig(m.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeConfigFile(m.path, m.Get()); err != nil {
			log.Printf("[Config] restore %s: %v", m.path, err)
		}
		return
	}
	if err != nil {
		log.Printf("[Config] keeping current config: %v", err)
		return
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return
	}
	log.Printf("[Config] %s changed on disk", m.path)
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

// readConfig loads and validates path. Fields missing from the file keep the
// defaults rooted at its directory.
func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// writeConfigFile replaces path atomically. The file holds API keys, so it is
// private to the user.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
