package ui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/link"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TableHeaderFg    tcell.Color
	TableCursorFg    tcell.Color
	TableCursorBg    tcell.Color
	TitleColor       tcell.Color
	UnreadColor      tcell.Color
	TagColor         tcell.Color
	OutboundColor    tcell.Color
	InboundColor     tcell.Color
	PendingColor     tcell.Color
	FailedColor      tcell.Color
	FlashInfoColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns a dark terminal theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TableHeaderFg:    tcell.ColorWhite,
		TableCursorFg:    tcell.ColorBlack,
		TableCursorBg:    tcell.ColorAqua,
		TitleColor:       tcell.ColorFuchsia,
		UnreadColor:      tcell.ColorOrange,
		TagColor:         tcell.ColorMediumPurple,
		OutboundColor:    tcell.ColorLightGreen,
		InboundColor:     tcell.ColorWhite,
		PendingColor:     tcell.ColorGray,
		FailedColor:      tcell.ColorOrangeRed,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}

// StatusMarker returns the delivery marker rendered after an outbound
// message.
func StatusMarker(s chat.Status) string {
	switch s {
	case chat.StatusPending:
		return "[gray]…[-]"
	case chat.StatusSent:
		return "[gray]✓[-]"
	case chat.StatusDelivered:
		return "[gray]✓✓[-]"
	case chat.StatusRead:
		return "[aqua]✓✓[-]"
	case chat.StatusFailed:
		return "[orangered]✗[-]"
	default:
		return ""
	}
}

// LinkMarker returns the colorized status-bar tag for a link state.
func LinkMarker(s link.State) string {
	switch s {
	case link.Online:
		return "[green]ONLINE[-]"
	case link.Connecting:
		return "[yellow]CONNECTING[-]"
	case link.Reconnecting:
		return "[yellow]RECONNECTING[-]"
	case link.Failed:
		return "[orangered]FAILED[-]"
	default:
		return "[gray]OFFLINE[-]"
	}
}
