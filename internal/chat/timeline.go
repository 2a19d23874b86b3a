package chat

import (
	"sort"
	"sync"
)

// Timeline owns the ordered message sequence for one conversation.
//
// Invariants: messages are unique by id and sorted by timestamp ascending.
// Callers mutate only through Merge, Append, ReplaceID and UpdateStatus;
// there is no positional access for writing. All mutations are serialized
// by an internal mutex, so interleaved pagination, send and push-event work
// never observe a half-applied operation.
type Timeline struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Merge inserts every message from batch whose id is not already present and
// returns the number inserted. Batches are expected to be ordered but the
// merge does not trust that: the sequence is re-sorted after insertion, so
// merging an older page never disturbs the relative order of messages that
// were already present.
func (t *Timeline) Merge(batch []Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[MessageID]struct{}, len(t.msgs))
	for _, m := range t.msgs {
		seen[m.ID] = struct{}{}
	}

	inserted := 0
	for _, m := range batch {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
		inserted++
	}
	if inserted > 0 {
		t.sortLocked()
	}
	return inserted
}

// Append adds one message if its id is not already present. Returns false
// (no-op) on a duplicate id, which is what absorbs real-time echoes of
// messages the store already holds.
func (t *Timeline) Append(m Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOfLocked(m.ID) >= 0 {
		return false
	}
	t.msgs = append(t.msgs, m)
	t.sortLocked()
	return true
}

// ReplaceID swaps the entry identified by old for its confirmed form. If old
// is absent the call is a no-op (a real-time echo may already have delivered
// the confirmed message before the local send call returned). If the
// confirmed id is itself already present, the stale entry under old is
// removed instead of swapped, so the two identities never coexist.
func (t *Timeline) ReplaceID(old MessageID, confirmed Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfLocked(old)
	if i < 0 {
		return false
	}
	if t.indexOfLocked(confirmed.ID) >= 0 {
		t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
		return true
	}
	t.msgs[i] = confirmed
	t.sortLocked()
	return true
}

// UpdateStatus patches status and error onto the entry identified by id.
// Empty patch fields leave the current value untouched. No-op if absent.
func (t *Timeline) UpdateStatus(id MessageID, status Status, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfLocked(id)
	if i < 0 {
		return false
	}
	if status != "" {
		t.msgs[i].Status = status
	}
	if errMsg != "" {
		t.msgs[i].Error = errMsg
	}
	return true
}

// Messages returns a copy of the current sequence, oldest first.
func (t *Timeline) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Last returns the newest message, if any.
func (t *Timeline) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

func (t *Timeline) indexOfLocked(id MessageID) int {
	for i, m := range t.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Timestamp < t.msgs[j].Timestamp
	})
}
