package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.relay/config.toml.
type Config struct {
	DefaultProfile string      `toml:"default_profile"`
	API            APIConfig   `toml:"api"`
	Push           PushConfig  `toml:"push"`
	Inbox          InboxConfig `toml:"inbox"`
}

// APIConfig configures the REST transport.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PushConfig configures the realtime push channel.
type PushConfig struct {
	URL string `toml:"url"`
}

// InboxConfig tunes the sync engine.
type InboxConfig struct {
	// PageSize is the message history page size P.
	PageSize int `toml:"page_size"`
	// ListPageSize is the conversation list window increment, independent
	// of message pagination.
	ListPageSize int `toml:"list_page_size"`
	// CacheCapacity bounds how many conversations keep an in-memory timeline.
	CacheCapacity int `toml:"cache_capacity"`
	// OlderDebounceMs coalesces rapid scroll-driven older-page triggers.
	OlderDebounceMs int `toml:"older_debounce_ms"`
	// SendTimeoutSeconds bounds how long an optimistic send may stay pending
	// before it is marked failed.
	SendTimeoutSeconds int `toml:"send_timeout_seconds"`
}

// Default returns a config with all tunables at their defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{TimeoutSeconds: 30},
		Inbox: InboxConfig{
			PageSize:           20,
			ListPageSize:       30,
			CacheCapacity:      5,
			OlderDebounceMs:    500,
			SendTimeoutSeconds: 30,
		},
	}
}

// Load reads config from the given path and fills in defaults for any
// tunable left unset. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = d.API.TimeoutSeconds
	}
	if c.Inbox.PageSize <= 0 {
		c.Inbox.PageSize = d.Inbox.PageSize
	}
	if c.Inbox.ListPageSize <= 0 {
		c.Inbox.ListPageSize = d.Inbox.ListPageSize
	}
	if c.Inbox.CacheCapacity <= 0 {
		c.Inbox.CacheCapacity = d.Inbox.CacheCapacity
	}
	if c.Inbox.OlderDebounceMs <= 0 {
		c.Inbox.OlderDebounceMs = d.Inbox.OlderDebounceMs
	}
	if c.Inbox.SendTimeoutSeconds <= 0 {
		c.Inbox.SendTimeoutSeconds = d.Inbox.SendTimeoutSeconds
	}
}

// APITimeout returns the REST call timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// OlderDebounce returns the older-page debounce as a duration.
func (c *Config) OlderDebounce() time.Duration {
	return time.Duration(c.Inbox.OlderDebounceMs) * time.Millisecond
}

// SendTimeout returns the pending-send deadline as a duration.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Inbox.SendTimeoutSeconds) * time.Second
}
