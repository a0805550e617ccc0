package delivery

import (
	"strings"
	"unicode"
)

// Split breaks text into ordered parts of at most maxLen runes so an
// arbitrarily long answer survives a transport with a hard per-message size
// ceiling. Each cut prefers the last newline inside the window, then the
// last sentence boundary (". "), then the last space; a window holding one
// unbroken token is cut hard at maxLen. Whitespace-only parts are dropped
// and the remainder is left-trimmed between parts, so concatenating the
// parts reproduces the text up to that normalization.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	var parts []string
	add := func(part string) {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}

	runes := []rune(text)
	for len(runes) > maxLen {
		window := string(runes[:maxLen])

		// Byte index of the cut plus how many separator bytes stay with
		// the leading part.
		cut, keep := -1, 0
		if i := strings.LastIndex(window, "\n"); i >= 0 {
			cut, keep = i, 1
		} else if i := strings.LastIndex(window, ". "); i >= 0 {
			cut, keep = i, 2
		} else if i := strings.LastIndex(window, " "); i >= 0 {
			cut, keep = i, 1
		}

		head := window
		if cut >= 0 {
			head = window[:cut+keep]
		}
		add(head)

		runes = runes[len([]rune(head)):]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}

	add(string(runes))
	return parts
}
