package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// FilterBar is the search/tag input above the inbox. A plain query becomes
// a search; "#tag" filters by tag.
type FilterBar struct {
	*tview.InputField
	onSearch func(query string)
	onTag    func(tag string)
	onClose  func()
}

// NewFilterBar creates the filter input.
func NewFilterBar() *FilterBar {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)

	fb := &FilterBar{InputField: input}

	input.SetChangedFunc(func(text string) {
		fb.apply(text)
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			fb.SetText("")
			fb.apply("")
		}
		if fb.onClose != nil {
			fb.onClose()
		}
	})

	return fb
}

func (fb *FilterBar) apply(text string) {
	text = strings.TrimSpace(text)
	if tag, ok := strings.CutPrefix(text, "#"); ok {
		if fb.onTag != nil {
			fb.onTag(tag)
		}
		return
	}
	if fb.onTag != nil {
		fb.onTag("")
	}
	if fb.onSearch != nil {
		fb.onSearch(text)
	}
}

// SetOnSearch sets the live search callback.
func (fb *FilterBar) SetOnSearch(fn func(query string)) { fb.onSearch = fn }

// SetOnTag sets the tag filter callback.
func (fb *FilterBar) SetOnTag(fn func(tag string)) { fb.onTag = fn }

// SetOnClose sets the callback for Enter/Escape leaving the input.
func (fb *FilterBar) SetOnClose(fn func()) { fb.onClose = fn }
