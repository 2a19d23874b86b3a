package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
)

type fakeTransport struct {
	mu        sync.Mutex
	textCalls int
	chain     []string
	err       error
	delay     time.Duration
	confirmID string
	onSend    func() // runs under lock just before SendText returns
}

func (f *fakeTransport) SendText(ctx context.Context, conversationID, body string) (chat.Message, error) {
	f.mu.Lock()
	f.textCalls++
	err := f.err
	delay := f.delay
	id := f.confirmID
	hook := f.onSend
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return chat.Message{}, ctx.Err()
		}
	}
	if err != nil {
		return chat.Message{}, err
	}
	if hook != nil {
		hook()
	}
	if id == "" {
		id = "srv-1"
	}
	return chat.Message{
		ID:             chat.ConfirmedID(id),
		ConversationID: conversationID,
		Direction:      chat.Outbound,
		Kind:           chat.KindText,
		Body:           body,
		Timestamp:      time.Now().UnixMilli(),
		Status:         chat.StatusSent,
	}, nil
}

func (f *fakeTransport) RequestUploadTarget(ctx context.Context, mimeType, kind, filename string) (*api.UploadTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain = append(f.chain, "presign")
	if f.err != nil {
		return nil, f.err
	}
	return &api.UploadTarget{UploadURL: "http://blob/u-1", StorageRef: "ref-1"}, nil
}

func (f *fakeTransport) UploadBytes(ctx context.Context, uploadURL, mimeType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain = append(f.chain, "upload")
	return nil
}

func (f *fakeTransport) SendFromStorage(ctx context.Context, conversationID, storageRef string, kind chat.Kind) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain = append(f.chain, "send:"+storageRef)
	return chat.Message{
		ID:             chat.ConfirmedID("srv-media"),
		ConversationID: conversationID,
		Direction:      chat.Outbound,
		Kind:           kind,
		Timestamp:      time.Now().UnixMilli(),
		Status:         chat.StatusSent,
	}, nil
}

func newSender(t *testing.T, transport Transport, timeout time.Duration) (*Sender, *chat.Cache, *bus.Bus) {
	t.Helper()
	cache, err := chat.NewCache(5)
	if err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	return New(transport, cache, b, nil, timeout), cache, b
}

func findMessage(tl *chat.Timeline, id chat.MessageID) (chat.Message, bool) {
	for _, m := range tl.Messages() {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

func TestSendTextInsertsPendingImmediately(t *testing.T) {
	transport := &fakeTransport{delay: 200 * time.Millisecond}
	s, cache, _ := newSender(t, transport, time.Second)

	id := s.SendText("conv-1", "hello")

	if !id.Provisional() {
		t.Error("returned id is not provisional")
	}
	tl, ok := cache.Get("conv-1")
	if !ok {
		t.Fatal("timeline not created on send")
	}
	m, ok := findMessage(tl, id)
	if !ok {
		t.Fatal("pending entry missing before confirmation")
	}
	if m.Status != chat.StatusPending || m.Direction != chat.Outbound || m.Body != "hello" {
		t.Errorf("pending entry = %+v", m)
	}
}

func TestSendTextReconcilesInPlace(t *testing.T) {
	transport := &fakeTransport{}
	s, cache, b := newSender(t, transport, time.Second)

	ch, unsub := b.Subscribe("send.", 10)
	defer unsub()

	id := s.SendText("conv-1", "hello")

	select {
	case evt := <-ch:
		ack, ok := evt.Payload.(bus.SendAck)
		if !ok {
			t.Fatalf("payload = %T, want SendAck", evt.Payload)
		}
		if ack.Provisional != id || ack.Confirmed != chat.ConfirmedID("srv-1") {
			t.Errorf("ack = %+v", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("no send.acked event")
	}

	tl, _ := cache.Get("conv-1")
	if _, ok := findMessage(tl, id); ok {
		t.Error("provisional entry still present after reconcile")
	}
	m, ok := findMessage(tl, chat.ConfirmedID("srv-1"))
	if !ok {
		t.Fatal("confirmed entry missing")
	}
	if m.Status != chat.StatusSent {
		t.Errorf("status = %s, want sent", m.Status)
	}
	if tl.Len() != 1 {
		t.Errorf("timeline len = %d, want 1", tl.Len())
	}
}

func TestSendFailureKeepsEntryAsFailed(t *testing.T) {
	transport := &fakeTransport{err: errors.New("network down")}
	s, cache, b := newSender(t, transport, time.Second)

	ch, unsub := b.Subscribe("send.failed", 10)
	defer unsub()

	id := s.SendText("conv-1", "hello")

	select {
	case evt := <-ch:
		failure, _ := evt.Payload.(bus.SendFailure)
		if failure.ID != id || failure.Reason != "network down" {
			t.Errorf("failure = %+v", failure)
		}
	case <-time.After(time.Second):
		t.Fatal("no send.failed event")
	}

	tl, _ := cache.Get("conv-1")
	m, ok := findMessage(tl, id)
	if !ok {
		t.Fatal("failed entry removed from timeline")
	}
	if m.Status != chat.StatusFailed || m.Error != "network down" {
		t.Errorf("entry = %+v, want failed with reason", m)
	}
}

func TestSendTimeoutMarksFailed(t *testing.T) {
	transport := &fakeTransport{delay: time.Second}
	s, cache, b := newSender(t, transport, 30*time.Millisecond)

	ch, unsub := b.Subscribe("send.failed", 10)
	defer unsub()

	id := s.SendText("conv-1", "hello")

	select {
	case evt := <-ch:
		failure, _ := evt.Payload.(bus.SendFailure)
		if failure.Reason != "timed out" {
			t.Errorf("reason = %q, want timed out", failure.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no send.failed event after timeout")
	}

	tl, _ := cache.Get("conv-1")
	if m, _ := findMessage(tl, id); m.Status != chat.StatusFailed {
		t.Errorf("status = %s, want failed", m.Status)
	}
}

func TestEchoRaceLeavesSingleEntry(t *testing.T) {
	transport := &fakeTransport{confirmID: "srv-echo"}
	s, cache, b := newSender(t, transport, time.Second)

	// The push channel delivers the confirmed message before the send
	// response comes back.
	transport.onSend = func() {
		tl := cache.GetOrCreate("conv-1")
		tl.Append(chat.Message{
			ID:             chat.ConfirmedID("srv-echo"),
			ConversationID: "conv-1",
			Direction:      chat.Outbound,
			Kind:           chat.KindText,
			Body:           "hello",
			Timestamp:      time.Now().UnixMilli(),
			Status:         chat.StatusSent,
		})
	}

	ch, unsub := b.Subscribe("send.acked", 10)
	defer unsub()

	id := s.SendText("conv-1", "hello")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no send.acked event")
	}

	tl, _ := cache.Get("conv-1")
	if tl.Len() != 1 {
		t.Fatalf("timeline len = %d, want exactly 1", tl.Len())
	}
	if _, ok := findMessage(tl, id); ok {
		t.Error("provisional entry survived the echo race")
	}
	if _, ok := findMessage(tl, chat.ConfirmedID("srv-echo")); !ok {
		t.Error("confirmed entry missing")
	}
}

func TestRetryReplaysFailedSend(t *testing.T) {
	transport := &fakeTransport{err: errors.New("boom")}
	s, cache, b := newSender(t, transport, time.Second)

	failedCh, unsubFailed := b.Subscribe("send.failed", 10)
	defer unsubFailed()

	id := s.SendText("conv-1", "hello")
	select {
	case <-failedCh:
	case <-time.After(time.Second):
		t.Fatal("first attempt did not fail")
	}

	m, ok := s.LastFailed("conv-1")
	if !ok || m.ID != id {
		t.Fatalf("LastFailed = %+v ok=%v, want the failed entry", m, ok)
	}

	transport.mu.Lock()
	transport.err = nil
	transport.mu.Unlock()

	ackCh, unsubAck := b.Subscribe("send.acked", 10)
	defer unsubAck()

	if !s.Retry(id) {
		t.Fatal("Retry returned false for a failed entry")
	}

	select {
	case evt := <-ackCh:
		ack, _ := evt.Payload.(bus.SendAck)
		if ack.Provisional != id {
			t.Errorf("ack provisional = %v, want %v", ack.Provisional, id)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not ack")
	}

	tl, _ := cache.Get("conv-1")
	if tl.Len() != 1 {
		t.Errorf("timeline len = %d, want 1", tl.Len())
	}
	transport.mu.Lock()
	calls := transport.textCalls
	transport.mu.Unlock()
	if calls != 2 {
		t.Errorf("SendText calls = %d, want 2", calls)
	}
}

func TestRetryRejectsUnknownAndNonFailed(t *testing.T) {
	transport := &fakeTransport{delay: 200 * time.Millisecond}
	s, _, _ := newSender(t, transport, time.Second)

	if s.Retry(chat.ProvisionalID("nope")) {
		t.Error("Retry accepted an unknown id")
	}

	id := s.SendText("conv-1", "hello")
	if s.Retry(id) {
		t.Error("Retry accepted a still-pending entry")
	}
}

func TestSendMediaRunsUploadChainInOrder(t *testing.T) {
	transport := &fakeTransport{}
	s, cache, b := newSender(t, transport, time.Second)

	ch, unsub := b.Subscribe("send.acked", 10)
	defer unsub()

	id := s.SendMedia("conv-1", chat.KindImage, "image/png", "cat.png", []byte{1, 2, 3})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("media send did not ack")
	}

	transport.mu.Lock()
	chain := append([]string(nil), transport.chain...)
	transport.mu.Unlock()
	want := []string{"presign", "upload", "send:ref-1"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain = %v, want %v", chain, want)
		}
	}

	tl, _ := cache.Get("conv-1")
	if _, ok := findMessage(tl, id); ok {
		t.Error("provisional media entry survived reconciliation")
	}
	if _, ok := findMessage(tl, chat.ConfirmedID("srv-media")); !ok {
		t.Error("confirmed media entry missing")
	}
}
