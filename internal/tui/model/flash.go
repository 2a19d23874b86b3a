package model

import (
	"sync"
	"time"
)

// Level classifies a flash message for rendering.
type Level int

const (
	Info Level = iota
	Error
)

// Flash holds one transient notification for the status bar.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   Level
	expires time.Time
}

// Set stores a flash message that expires after the given duration.
func (f *Flash) Set(level Level, msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = time.Now().Add(d)
}

// Get returns the current message and level, or empty if expired.
func (f *Flash) Get() (string, Level) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", Info
	}
	return f.message, f.level
}
