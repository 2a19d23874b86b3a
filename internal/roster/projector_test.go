package roster

import (
	"fmt"
	"testing"

	"github.com/relaydesk/relay/internal/chat"
)

func seed(n int) []chat.Conversation {
	out := make([]chat.Conversation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, chat.Conversation{
			ID:           fmt.Sprintf("conv-%02d", i),
			Title:        fmt.Sprintf("Contact %02d", i),
			Address:      fmt.Sprintf("+55119%04d", i),
			LastActivity: int64(1000 + i),
		})
	}
	return out
}

func TestVisibleSortsByActivityDescending(t *testing.T) {
	p := New(10)
	p.Replace(seed(5))

	got := p.Visible()
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].LastActivity < got[i].LastActivity {
			t.Errorf("out of order at %d: %d before %d", i, got[i-1].LastActivity, got[i].LastActivity)
		}
	}
	if got[0].ID != "conv-04" {
		t.Errorf("front = %s, want conv-04", got[0].ID)
	}
}

func TestBumpMovesConversationToFront(t *testing.T) {
	p := New(10)
	p.Replace(seed(5))

	p.Bump("conv-01", "new message", 9000, true)

	got := p.Visible()
	if got[0].ID != "conv-01" {
		t.Fatalf("front = %s, want conv-01", got[0].ID)
	}
	if got[0].LastPreview != "new message" || !got[0].Unread {
		t.Errorf("front = %+v, want preview + unread", got[0])
	}
}

func TestBumpIgnoresStaleActivity(t *testing.T) {
	p := New(10)
	p.Upsert(chat.Conversation{ID: "conv-1", LastActivity: 5000})

	p.Bump("conv-1", "late arrival", 3000, false)

	c, _ := p.Get("conv-1")
	if c.LastActivity != 5000 {
		t.Errorf("LastActivity = %d, want 5000 kept", c.LastActivity)
	}
	if c.LastPreview != "late arrival" {
		t.Errorf("LastPreview = %q, want updated", c.LastPreview)
	}
}

func TestBumpCreatesUnknownConversation(t *testing.T) {
	p := New(10)
	p.Bump("conv-new", "hello", 100, true)

	c, ok := p.Get("conv-new")
	if !ok {
		t.Fatal("Bump did not create the conversation")
	}
	if !c.Unread || c.LastPreview != "hello" {
		t.Errorf("created = %+v", c)
	}
}

func TestMarkRead(t *testing.T) {
	p := New(10)
	p.Upsert(chat.Conversation{ID: "conv-1", Unread: true})

	p.MarkRead("conv-1")

	if c, _ := p.Get("conv-1"); c.Unread {
		t.Error("Unread still set after MarkRead")
	}
}

func TestWindowAndLoadMore(t *testing.T) {
	p := New(3)
	p.Replace(seed(8))

	if got := p.Visible(); len(got) != 3 {
		t.Fatalf("window = %d, want 3", len(got))
	}
	if !p.HasMore() {
		t.Error("HasMore() = false with 8 conversations and a 3-wide window")
	}

	p.LoadMore()
	if got := p.Visible(); len(got) != 6 {
		t.Errorf("window after LoadMore = %d, want 6", len(got))
	}

	p.LoadMore()
	if got := p.Visible(); len(got) != 8 {
		t.Errorf("window = %d, want all 8", len(got))
	}
	if p.HasMore() {
		t.Error("HasMore() = true with everything visible")
	}
}

func TestSearchFiltersAndResetsWindow(t *testing.T) {
	p := New(2)
	p.Replace([]chat.Conversation{
		{ID: "a", Title: "Ana Souza", LastActivity: 3},
		{ID: "b", Title: "Bruno", Address: "+551188", LastActivity: 2},
		{ID: "c", Title: "Carla", LastPreview: "falar com ana", LastActivity: 1},
	})
	p.LoadMore()

	p.SetSearch("Ana")

	got := p.Visible()
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2 (title and preview)", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("matches = %s,%s, want a,c", got[0].ID, got[1].ID)
	}

	// Window must be back to a single page after the filter change.
	p.Replace(seed(8))
	p.SetSearch("")
	if got := p.Visible(); len(got) != 2 {
		t.Errorf("window after filter reset = %d, want 2", len(got))
	}
}

func TestTagFilter(t *testing.T) {
	p := New(10)
	p.Replace([]chat.Conversation{
		{ID: "a", Tags: []string{"vip", "lead"}, LastActivity: 2},
		{ID: "b", Tags: []string{"lead"}, LastActivity: 1},
		{ID: "c", LastActivity: 3},
	})

	p.SetTag("vip")
	got := p.Visible()
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("tag filter = %+v, want only a", got)
	}

	p.SetTag("")
	if got := p.Visible(); len(got) != 3 {
		t.Errorf("cleared filter = %d, want 3", len(got))
	}
}

func TestCounts(t *testing.T) {
	p := New(3)
	p.Replace(seed(8))

	visible, filtered, total := p.Counts()
	if visible != 3 || filtered != 8 || total != 8 {
		t.Errorf("Counts() = %d/%d/%d, want 3/8/8", visible, filtered, total)
	}

	p.SetSearch("contact 0")
	_, filtered, total = p.Counts()
	if filtered != 8 || total != 8 {
		t.Errorf("Counts() after search = filtered %d total %d, want 8/8", filtered, total)
	}
}
