package config

import "sync"

// Store holds the live config and the file it persists to.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewStore wraps cfg; Save writes to path (ConfigPath() when empty).
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: *cfg, path: path}
}

// Config returns a snapshot of the current config.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update mutates the config under the write lock.
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Save persists the current config.
func (s *Store) Save() error {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()
	return Save(&cfg, s.path)
}

// Path returns the file Save writes to.
func (s *Store) Path() string {
	if s.path == "" {
		return ConfigPath()
	}
	return s.path
}
