package matching

import "strings"

// Shortcut is a global navigation command that works in every state.
type Shortcut string

const (
	ShortcutBack  Shortcut = "back"
	ShortcutMenu  Shortcut = "menu"
	ShortcutHuman Shortcut = "human"
)

const shortcutIDPrefix = "nav_"

// ChoiceID is the structural id used when a shortcut is offered as a button.
func (s Shortcut) ChoiceID() string {
	return shortcutIDPrefix + string(s)
}

// ShortcutFromID maps a structural shortcut id back to its shortcut.
func ShortcutFromID(id string) (Shortcut, bool) {
	if !strings.HasPrefix(id, shortcutIDPrefix) {
		return "", false
	}
	switch s := Shortcut(strings.TrimPrefix(id, shortcutIDPrefix)); s {
	case ShortcutBack, ShortcutMenu, ShortcutHuman:
		return s, true
	}
	return "", false
}

// Shortcuts is a keyword table for the global navigation commands.
type Shortcuts struct {
	keywords map[string]Shortcut
}

// DefaultKeywords covers English and Portuguese phrasings.
var DefaultKeywords = map[Shortcut][]string{
	ShortcutBack:  {"back", "go back", "previous", "voltar", "anterior"},
	ShortcutMenu:  {"menu", "main menu", "start over", "restart", "inicio", "menu principal"},
	ShortcutHuman: {"human", "agent", "talk to a person", "atendente", "humano", "falar com atendente"},
}

// NewShortcuts builds a table; keywords are normalized once here.
func NewShortcuts(table map[Shortcut][]string) *Shortcuts {
	s := &Shortcuts{keywords: make(map[string]Shortcut)}
	for shortcut, words := range table {
		for _, w := range words {
			if n := Normalize(w); n != "" {
				s.keywords[n] = shortcut
			}
		}
	}
	return s
}

// DefaultShortcuts returns the table built from DefaultKeywords.
func DefaultShortcuts() *Shortcuts {
	return NewShortcuts(DefaultKeywords)
}

// Detect reports whether the whole input is a shortcut keyword.
func (s *Shortcuts) Detect(raw string) (Shortcut, bool) {
	if s == nil {
		return "", false
	}
	shortcut, ok := s.keywords[Normalize(raw)]
	return shortcut, ok
}
