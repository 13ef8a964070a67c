package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context remembers the last conversation the user opened so the CLI and TUI
// can resume it.
type Context struct {
	// PeerID is the last selected peer.
	PeerID string `yaml:"peer,omitempty"`
	// PeerName is the peer's display name at the time it was selected.
	PeerName string `yaml:"peer_name,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no peer is remembered.
func (c *Context) IsEmpty() bool {
	return c.PeerID == ""
}

// Clear forgets the peer.
func (c *Context) Clear() {
	c.PeerID = ""
	c.PeerName = ""
	c.UpdatedAt = time.Now()
}

// SetPeer records the selected peer.
func (c *Context) SetPeer(id, name string) {
	c.PeerID = id
	c.PeerName = name
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no conversation)"
	}
	name := c.PeerName
	if name == "" {
		name = shortID(c.PeerID)
	}
	return fmt.Sprintf("peer:%s", name)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/dmail/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "dmail", "context.yaml")
	}
	return &ContextStore{path: path}
}

// ContextStore returns the store living in the configured directory.
func (c *Config) ContextStore() *ContextStore {
	if c.ConfigDir == "" {
		return NewContextStore("")
	}
	return NewContextStore(filepath.Join(c.ConfigDir, "context.yaml"))
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context. A missing file yields an empty context.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Context{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read context %s: %w", s.path, err)
	}

	var ctx Context
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", s.path, err)
	}
	return &ctx, nil
}

// Save replaces the context file atomically.
func (s *ContextStore) Save(ctx *Context) error {
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".context-*.yaml")
	if err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return nil
}

// Clear removes the context file. A missing file is not an error.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove context %s: %w", s.path, err)
	}
	return nil
}
