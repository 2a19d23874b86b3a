package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/relaydesk/relay/internal/link"
	"github.com/relaydesk/relay/internal/tui/model"
	"github.com/relaydesk/relay/internal/tui/ui"
)

// StatusBar shows the profile, push-link state, key hints and transient
// flash messages.
type StatusBar struct {
	*tview.TextView
	profile string
	state   link.State
	hints   []string
	flash   *model.Flash
}

// NewStatusBar creates the status bar.
func NewStatusBar(flash *model.Flash) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, state: link.Offline, flash: flash}
}

// SetProfile sets the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetLinkState updates the push-link indicator.
func (sb *StatusBar) SetLinkState(s link.State) {
	sb.state = s
	sb.render()
}

// SetHints updates the key hints for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// Refresh redraws the bar, picking up flash expiry and the clock.
func (sb *StatusBar) Refresh() {
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s",
		sb.profile, ui.LinkMarker(sb.state), strings.Join(sb.hints, " "), clock)

	if msg, level := sb.flash.Get(); msg != "" {
		color := "navajowhite"
		if level == model.Error {
			color = "orangered"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(msg))
	}

	_, _ = fmt.Fprint(sb, line)
}
