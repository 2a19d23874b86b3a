// Package pager drives message history loading for the thread view: the
// blocking initial page when an uncached conversation is opened, and
// debounced older-page loads as the user scrolls toward the top. It owns
// the per-conversation fetch cursor and keeps the reading position stable
// across prepends.
package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
)

// Phase is the loading state of the active conversation.
type Phase string

const (
	Idle           Phase = "IDLE"
	LoadingInitial Phase = "LOADING_INITIAL"
	Ready          Phase = "READY"
	LoadingOlder   Phase = "LOADING_OLDER"
)

// Cursor tracks how far back into a conversation's history we have paged.
type Cursor struct {
	Offset  int
	HasMore bool
	Total   int
}

// Fetcher is the slice of the REST client the controller needs.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID string, limit, offset int) (*api.MessagePage, error)
}

// Anchor lets the controller keep the visible reading position stable when
// older messages are prepended. ContentHeight is sampled before the merge;
// AdjustScroll is called with the growth afterwards.
type Anchor interface {
	ContentHeight() int
	AdjustScroll(delta int)
}

// Controller coordinates history fetches for whichever conversation the
// thread view is showing.
type Controller struct {
	fetcher  Fetcher
	cache    *chat.Cache
	bus      *bus.Bus
	logger   *zap.Logger
	pageSize int
	debounce time.Duration

	mu      sync.Mutex
	active  string
	phase   Phase
	cursors map[string]*Cursor
	anchor  Anchor
	timer   *time.Timer
	loading bool
}

// New creates a controller. A zero debounce falls back to 500ms.
func New(fetcher Fetcher, cache *chat.Cache, b *bus.Bus, logger *zap.Logger, pageSize int, debounce time.Duration) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Controller{
		fetcher:  fetcher,
		cache:    cache,
		bus:      b,
		logger:   logger.Named("pager"),
		pageSize: pageSize,
		debounce: debounce,
		phase:    Idle,
		cursors:  make(map[string]*Cursor),
	}
}

// Active returns the conversation currently shown in the thread view.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Phase returns the loading state of the active conversation.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Timeline returns the cached timeline for a conversation, if present,
// without triggering any fetch.
func (c *Controller) Timeline(conversationID string) (*chat.Timeline, bool) {
	return c.cache.Get(conversationID)
}

// CursorFor returns a copy of the fetch cursor for a conversation.
func (c *Controller) CursorFor(conversationID string) (Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cursors[conversationID]
	if !ok {
		return Cursor{}, false
	}
	return *cur, true
}

// SetAnchor wires the scroll anchor. The thread view calls this once at
// startup.
func (c *Controller) SetAnchor(a Anchor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = a
}

// Select makes a conversation active. A cache hit renders immediately and
// reconciles the newest page in the background; a miss blocks on the
// initial fetch so the caller can show a loading state.
func (c *Controller) Select(ctx context.Context, conversationID string) (*chat.Timeline, error) {
	c.mu.Lock()
	c.active = conversationID
	c.cancelTimerLocked()

	if tl, ok := c.cache.Get(conversationID); ok {
		c.phase = Ready
		c.mu.Unlock()
		go c.reconcileNewest(conversationID)
		return tl, nil
	}

	c.phase = LoadingInitial
	c.mu.Unlock()

	page, err := c.fetcher.FetchMessages(ctx, conversationID, c.pageSize, 0)
	if err != nil {
		c.mu.Lock()
		if c.active == conversationID {
			c.phase = Idle
		}
		c.mu.Unlock()
		c.publishFetchFailed(conversationID, "initial", err)
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	tl := c.cache.GetOrCreate(conversationID)
	tl.Merge(page.Messages)

	c.mu.Lock()
	c.cursors[conversationID] = &Cursor{
		Offset:  len(page.Messages),
		HasMore: page.HasMore,
		Total:   page.Total,
	}
	if c.active == conversationID {
		c.phase = Ready
	}
	c.mu.Unlock()

	c.publishTimelineUpdated(conversationID)
	return tl, nil
}

// NoteTopVisible reports that the user scrolled to the top of the loaded
// history. The older-page fetch fires on the trailing edge of a debounce
// window so a fast scrub through the top does not fan out into a burst of
// requests.
func (c *Controller) NoteTopVisible() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == "" || c.phase != Ready || c.loading {
		return
	}
	cur, ok := c.cursors[c.active]
	if !ok || !cur.HasMore {
		return
	}

	conversationID := c.active
	c.cancelTimerLocked()
	c.timer = time.AfterFunc(c.debounce, func() {
		c.loadOlder(conversationID)
	})
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// loadOlder fetches the next older page for the given conversation. Runs
// off the debounce timer goroutine.
func (c *Controller) loadOlder(conversationID string) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return
	}
	cur, ok := c.cursors[conversationID]
	if !ok || !cur.HasMore {
		c.mu.Unlock()
		return
	}
	offset := cur.Offset
	c.loading = true
	if c.active == conversationID {
		c.phase = LoadingOlder
	}
	anchor := c.anchor
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		if c.active == conversationID && c.phase == LoadingOlder {
			c.phase = Ready
		}
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
	defer cancel()

	page, err := c.fetcher.FetchMessages(ctx, conversationID, c.pageSize, offset)
	if err != nil {
		// Cursor stays where it was so the next top hit retries the
		// same page.
		c.logger.Warn("older page fetch failed",
			zap.String("conversation", conversationID),
			zap.Int("offset", offset),
			zap.Error(err))
		c.publishFetchFailed(conversationID, "older", err)
		return
	}

	tl, ok := c.cache.Get(conversationID)
	stale := c.Active() != conversationID
	if !ok {
		// Evicted while the fetch was in flight. Nothing to merge into;
		// reopening the conversation starts from a fresh initial load.
		return
	}

	var before int
	if anchor != nil && !stale {
		before = anchor.ContentHeight()
	}

	tl.Merge(page.Messages)

	c.mu.Lock()
	cur.Offset = offset + len(page.Messages)
	cur.HasMore = page.HasMore
	cur.Total = page.Total
	c.mu.Unlock()

	if anchor != nil && !stale {
		if delta := anchor.ContentHeight() - before; delta > 0 {
			anchor.AdjustScroll(delta)
		}
	}

	c.publishTimelineUpdated(conversationID)
}

// reconcileNewest refreshes the newest page of a cache-hit conversation so
// anything missed while it sat cold in the cache gets merged in.
func (c *Controller) reconcileNewest(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
	defer cancel()

	page, err := c.fetcher.FetchMessages(ctx, conversationID, c.pageSize, 0)
	if err != nil {
		c.logger.Debug("newest page reconcile failed",
			zap.String("conversation", conversationID),
			zap.Error(err))
		return
	}

	tl, ok := c.cache.Get(conversationID)
	if !ok {
		return
	}
	if added := tl.Merge(page.Messages); added > 0 {
		c.publishTimelineUpdated(conversationID)
	}

	c.mu.Lock()
	if _, ok := c.cursors[conversationID]; !ok {
		c.cursors[conversationID] = &Cursor{
			Offset:  len(page.Messages),
			HasMore: page.HasMore,
			Total:   page.Total,
		}
	}
	c.mu.Unlock()
}

func (c *Controller) publishTimelineUpdated(conversationID string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.KindTimelineUpdated,
		Timestamp: time.Now(),
		Payload:   bus.TimelineRef{ConversationID: conversationID},
	})
}

func (c *Controller) publishFetchFailed(conversationID, op string, err error) {
	if c.bus == nil {
		return
	}
	reason := err.Error()
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		reason = apiErr.Message
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.KindFetchFailed,
		Timestamp: time.Now(),
		Payload: bus.FetchFailure{
			ConversationID: conversationID,
			Op:             op,
			Reason:         reason,
		},
	})
}
