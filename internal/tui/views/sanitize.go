package views

import "strings"

// sanitizeForTerminal drops codepoints that break cell-width accounting in
// tcell: emoji skin tone modifiers, zero width joiners and variation
// selectors. Multi-codepoint emoji collapse to their base character, which
// renders at a predictable width.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
			return -1
		case r == 0x200D: // zero width joiner
			return -1
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
			return -1
		case r >= 0xE0100 && r <= 0xE01EF: // variation selectors supplement
			return -1
		}
		return r
	}, s)
}
