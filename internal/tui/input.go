package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQueryLen is the maximum number of runes allowed in the log search box.
const maxQueryLen = 120

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if text == "" {
			return text
		}
		_, size := utf8.DecodeLastRuneInString(text)
		return text[:len(text)-size]
	case "ctrl+u":
		return ""
	}
	if utf8.RuneCountInString(key) != 1 {
		return text
	}
	return insertText(text, key)
}

// insertText appends pasted or typed text, dropping control characters and
// clamping to maxQueryLen runes.
func insertText(text, s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	room := maxQueryLen - utf8.RuneCountInString(text)
	if room <= 0 {
		return text
	}
	if runes := []rune(s); len(runes) > room {
		s = string(runes[:room])
	}
	return text + s
}

// renderSearchInput renders the inline "/ query" box above the log table.
func renderSearchInput(query string, focused bool) string {
	prompt := accentStyle.Render("/") + " "
	if !focused {
		if query == "" {
			return prompt + inputPlaceholderStyle.Render("search id, recipient or template")
		}
		return prompt + dimStyle.Render(query)
	}
	return prompt + normalStyle.Render(query) + accentStyle.Render("█")
}
