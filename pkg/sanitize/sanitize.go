// Package sanitize strips invisible and bidirectional-control Unicode
// characters from text that will be rendered to a human reviewer (approval
// prompts, suggestion diffs, policy descriptions) so that hidden characters
// can't be used to disguise what a pattern or payload actually says.
package sanitize

import "strings"

// FilterInvisibleCharacters removes characters matched by shouldRemoveRune
// from s, leaving all other runes (including multi-byte scripts and emoji)
// untouched.
func FilterInvisibleCharacters(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if shouldRemoveRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// shouldRemoveRune reports whether r is an invisible, zero-width, or
// bidirectional-control character commonly used to hide or reorder text
// presented to a human reviewer.
func shouldRemoveRune(r rune) bool {
	switch r {
	case 0x200B, // zero width space
		0x200C,  // zero width non-joiner
		0x200E,  // left-to-right mark
		0x200F,  // right-to-left mark
		0x00AD,  // soft hyphen
		0xFEFF,  // zero width no-break space / BOM
		0x180E,  // mongolian vowel separator
		0xE0001: // language tag
		return true
	}

	switch {
	case r >= 0xE0020 && r <= 0xE007F: // unicode tags
		return true
	case r >= 0x202A && r <= 0x202E: // bidi controls (embeds/overrides/pop)
		return true
	case r >= 0x2066 && r <= 0x2069: // bidi isolates
		return true
	case r >= 0x2060 && r <= 0x2064: // hidden modifiers (word joiner, invisible operators)
		return true
	}

	return false
}
