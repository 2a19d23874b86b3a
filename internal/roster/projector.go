// Package roster maintains the ordered, filtered, searchable conversation
// list. Its pagination window is independent of message pagination: the
// visible slice is always recomputed from the full filtered set rather than
// patched incrementally, so repeated re-sorts cannot accumulate drift.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/relaydesk/relay/internal/chat"
)

// Projector holds the full conversation set and projects the visible window.
type Projector struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	search        string
	tag           string
	pageSize      int
	pages         int
}

// New creates a projector with the given list page size.
func New(pageSize int) *Projector {
	if pageSize <= 0 {
		pageSize = 30
	}
	return &Projector{
		conversations: make(map[string]chat.Conversation),
		pageSize:      pageSize,
		pages:         1,
	}
}

// Replace swaps the full conversation set, e.g. from an initial list fetch
// or a push-channel snapshot after a reconnect gap. Local unread bookkeeping
// is discarded in favor of the snapshot's.
func (p *Projector) Replace(convs []chat.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversations = make(map[string]chat.Conversation, len(convs))
	for _, c := range convs {
		p.conversations[c.ID] = c
	}
}

// Upsert inserts or fully overwrites one conversation entry.
func (p *Projector) Upsert(c chat.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversations[c.ID] = c
}

// Bump moves a conversation to the front of the list: updates its summary
// and last-activity timestamp and sets the unread marker. A conversation
// not yet in the list is created on the fly (its title resolves on the next
// list fetch or snapshot).
func (p *Projector) Bump(id, preview string, activityMs int64, unread bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.conversations[id]
	c.ID = id
	c.LastPreview = preview
	if activityMs > c.LastActivity {
		c.LastActivity = activityMs
	}
	if unread {
		c.Unread = true
	}
	p.conversations[id] = c
}

// MarkRead clears the unread marker for a conversation.
func (p *Projector) MarkRead(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conversations[id]; ok {
		c.Unread = false
		p.conversations[id] = c
	}
}

// Get returns one conversation by id.
func (p *Projector) Get(id string) (chat.Conversation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conversations[id]
	return c, ok
}

// SetSearch sets the search term and resets the window to one page.
func (p *Projector) SetSearch(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.search = strings.ToLower(strings.TrimSpace(q))
	p.pages = 1
}

// SetTag sets the tag filter and resets the window to one page.
func (p *Projector) SetTag(tag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tag = tag
	p.pages = 1
}

// LoadMore widens the visible window by one page of the filtered set.
func (p *Projector) LoadMore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages++
}

// Visible returns the current window over the filtered set, sorted by
// last activity descending.
func (p *Projector) Visible() []chat.Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	filtered := p.filteredLocked()
	limit := p.pages * p.pageSize
	if limit > len(filtered) {
		limit = len(filtered)
	}
	return filtered[:limit]
}

// HasMore reports whether the filtered set extends beyond the window.
func (p *Projector) HasMore() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.filteredLocked()) > p.pages*p.pageSize
}

// Counts returns (visible window size, filtered total, overall total).
func (p *Projector) Counts() (int, int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	filtered := len(p.filteredLocked())
	visible := p.pages * p.pageSize
	if visible > filtered {
		visible = filtered
	}
	return visible, filtered, len(p.conversations)
}

func (p *Projector) filteredLocked() []chat.Conversation {
	out := make([]chat.Conversation, 0, len(p.conversations))
	for _, c := range p.conversations {
		if p.search != "" && !matchesSearch(c, p.search) {
			continue
		}
		if p.tag != "" && !hasTag(c, p.tag) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matchesSearch(c chat.Conversation, q string) bool {
	return strings.Contains(strings.ToLower(c.Title), q) ||
		strings.Contains(strings.ToLower(c.Address), q) ||
		strings.Contains(strings.ToLower(c.LastPreview), q)
}

func hasTag(c chat.Conversation, tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
