// Package push maintains the websocket link to the platform's event feed.
// Frames are decoded into domain events and re-published on the in-process
// bus under the "push." namespace; the merger applies them to local state.
// The link reconnects on its own with exponential backoff.
package push

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/link"
)

// Frame event names on the wire.
const (
	frameMessageCreated = "message.created"
	frameMessageUpdated = "message.updated"
	frameSnapshot       = "snapshot"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxAttempts    = 8
	// A connection that survives this long resets the backoff sequence.
	stableAfter = 60 * time.Second
)

// frame is the wire envelope for push events.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the reconnecting websocket client.
type Channel struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *link.Machine
	logger  *zap.Logger

	dialer         *websocket.Dialer
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes the channel.
type Option func(*Channel)

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Channel) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithMaxAttempts overrides how many consecutive failures are tolerated
// before the link is declared failed. Zero means never give up.
func WithMaxAttempts(n int) Option {
	return func(c *Channel) { c.maxAttempts = n }
}

// New creates a push channel for the given websocket URL and bearer token.
func New(url, token string, b *bus.Bus, machine *link.Machine, logger *zap.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		url:            url,
		token:          token,
		bus:            b,
		machine:        machine,
		logger:         logger.Named("push"),
		dialer:         websocket.DefaultDialer,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxAttempts:    defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects in the background and keeps the link alive until Stop.
func (c *Channel) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

// Stop tears the link down.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	_ = c.machine.Transition(link.Offline)
	c.logger.Info("push link stopped")
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.initialBackoff
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}
		_ = c.machine.Transition(link.Connecting)

		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			c.logger.Warn("push dial failed",
				zap.Int("attempt", attempts),
				zap.Error(err))
			if c.maxAttempts > 0 && attempts >= c.maxAttempts {
				_ = c.machine.Transition(link.Failed)
				c.logger.Error("push link failed permanently", zap.Int("attempts", attempts))
				return
			}
			_ = c.machine.Transition(link.Reconnecting)
			if !sleep(ctx, withJitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}

		_ = c.machine.Transition(link.Online)
		c.logger.Info("push link online")
		connectedAt := time.Now()

		c.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		if time.Since(connectedAt) >= stableAfter {
			backoff = c.initialBackoff
			attempts = 0
		}
		_ = c.machine.Transition(link.Reconnecting)
		c.logger.Warn("push link dropped, reconnecting")
		if !sleep(ctx, withJitter(backoff)) {
			return
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("push read error", zap.Error(err))
			}
			return
		}
		c.handleFrame(f)
	}
}

func (c *Channel) handleFrame(f frame) {
	switch f.Event {
	case frameMessageCreated:
		var record api.MessageRecord
		if err := json.Unmarshal(f.Payload, &record); err != nil {
			c.logger.Warn("bad message.created payload", zap.Error(err))
			return
		}
		c.publish(bus.KindPushMessageCreated, record.Message())
	case frameMessageUpdated:
		var record api.StatusRecord
		if err := json.Unmarshal(f.Payload, &record); err != nil {
			c.logger.Warn("bad message.updated payload", zap.Error(err))
			return
		}
		c.publish(bus.KindPushMessageUpdated, record.Event())
	case frameSnapshot:
		var payload struct {
			Conversations []api.ConversationRecord `json:"conversations"`
		}
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			c.logger.Warn("bad snapshot payload", zap.Error(err))
			return
		}
		convs := make([]chat.Conversation, 0, len(payload.Conversations))
		for _, r := range payload.Conversations {
			convs = append(convs, r.Conversation())
		}
		c.publish(bus.KindPushSnapshot, convs)
	default:
		c.logger.Debug("unknown push frame", zap.String("event", f.Event))
	}
}

func (c *Channel) publish(kind string, payload any) {
	c.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// withJitter spreads reconnect storms out by up to 25% of the delay.
func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
