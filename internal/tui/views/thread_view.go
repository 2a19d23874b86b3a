package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/tui/ui"
)

// ThreadView renders one conversation's timeline. It keeps its own line
// count so the pager can measure content growth when an older page is
// prepended and shift the scroll position by the same amount.
type ThreadView struct {
	*tview.TextView
	lines int
}

// NewThreadView creates the message thread view.
func NewThreadView() *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")
	return &ThreadView{TextView: tv}
}

// SetConversationTitle updates the border title.
func (tv *ThreadView) SetConversationTitle(title string) {
	tv.SetTitle(" " + sanitizeForTerminal(title) + " ")
}

// Update re-renders the timeline, oldest first. Scroll position is the
// caller's problem: the pager anchors it around older-page loads and the
// app decides whether to follow new messages.
func (tv *ThreadView) Update(msgs []chat.Message) {
	tv.Clear()
	tv.lines = 0

	var b strings.Builder
	for _, m := range msgs {
		line := renderMessage(m)
		b.WriteString(line)
		tv.lines += strings.Count(line, "\n")
	}
	_, _ = fmt.Fprint(tv, b.String())
}

// ContentHeight returns the rendered line count.
func (tv *ThreadView) ContentHeight() int {
	return tv.lines
}

// AdjustScroll shifts the scroll position down by delta lines, keeping the
// previously visible messages in place after a prepend.
func (tv *ThreadView) AdjustScroll(delta int) {
	row, col := tv.GetScrollOffset()
	tv.ScrollTo(row+delta, col)
}

// AtTop reports whether the oldest loaded message is visible.
func (tv *ThreadView) AtTop() bool {
	row, _ := tv.GetScrollOffset()
	return row == 0
}

// NearBottom reports whether the view is within one screen of the newest
// message, i.e. whether it should follow appends.
func (tv *ThreadView) NearBottom() bool {
	_, _, _, height := tv.GetInnerRect()
	row, _ := tv.GetScrollOffset()
	return row+2*height >= tv.lines
}

func renderMessage(m chat.Message) string {
	who := "Them"
	color := "[white]"
	if m.Direction == chat.Outbound {
		who = "You"
		color = "[lightgreen]"
	}

	marker := ""
	if m.Direction == chat.Outbound {
		marker = " " + ui.StatusMarker(m.Status)
	}

	body := sanitizeForTerminal(m.Body)
	if m.Kind != chat.KindText {
		if body != "" {
			body = fmt.Sprintf("[%s] %s", m.Kind, body)
		} else {
			body = fmt.Sprintf("[%s]", m.Kind)
		}
		body = tview.Escape(body)
	}
	if m.Status == chat.StatusFailed {
		reason := m.Error
		if reason == "" {
			reason = "send failed"
		}
		body += fmt.Sprintf("\n[orangered]✗ %s (r to retry)[-]", reason)
	}

	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	return fmt.Sprintf("%s[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", color, who, ts, marker, body)
}
