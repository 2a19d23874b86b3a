package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/relaydesk/relay/internal/chat"
)

// InboxList is the conversation list table.
type InboxList struct {
	*tview.Table
	conversations []chat.Conversation
}

// NewInboxList creates the conversation list.
func NewInboxList() *InboxList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Inbox ")
	return &InboxList{Table: table}
}

// Update re-renders the list. The title carries the window/filtered counts
// and the active filter, if any.
func (il *InboxList) Update(conversations []chat.Conversation, filtered int, filter string, hasMore bool) {
	row, _ := il.GetSelection()
	il.conversations = conversations
	il.Clear()

	title := fmt.Sprintf(" Inbox [%d/%d] ", len(conversations), filtered)
	if filter != "" {
		title = fmt.Sprintf(" Inbox <%s> [%d/%d] ", filter, len(conversations), filtered)
	}
	il.SetTitle(title)

	il.SetCell(0, 0, tview.NewTableCell(" Contact").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	il.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	il.SetCell(0, 2, tview.NewTableCell(" Tags").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	il.SetCell(0, 3, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range conversations {
		name := c.Title
		if name == "" {
			name = c.Address
		}
		name = sanitizeForTerminal(name)
		if c.Unread {
			name = "[orange]● " + name + "[-]"
		} else {
			name = "  " + name
		}

		il.SetCell(i+1, 0, tview.NewTableCell(" "+name).SetMaxWidth(28).SetExpansion(1))
		il.SetCell(i+1, 1, tview.NewTableCell(" "+sanitizeForTerminal(c.LastPreview)).SetMaxWidth(44).SetExpansion(2))
		il.SetCell(i+1, 2, tview.NewTableCell(" "+strings.Join(c.Tags, ",")).SetMaxWidth(16))
		il.SetCell(i+1, 3, tview.NewTableCell(" "+formatTimestamp(c.LastActivity)).SetMaxWidth(12))
	}

	if hasMore {
		il.SetCell(len(conversations)+1, 0,
			tview.NewTableCell(" [gray]m:more…[-]").SetSelectable(false))
	}

	if row > 0 && row <= len(conversations) {
		il.Select(row, 0)
	} else if len(conversations) > 0 {
		il.Select(1, 0)
	}
}

// Selected returns the conversation id under the cursor.
func (il *InboxList) Selected() string {
	row, _ := il.GetSelection()
	idx := row - 1 // header
	if idx >= 0 && idx < len(il.conversations) {
		return il.conversations[idx].ID
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
