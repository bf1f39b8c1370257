package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortcutsDetect(t *testing.T) {
	s := DefaultShortcuts()
	tests := []struct {
		in   string
		want Shortcut
		ok   bool
	}{
		{"Voltar", ShortcutBack, true},
		{"go back!", ShortcutBack, true},
		{"MENU", ShortcutMenu, true},
		{"Início", ShortcutMenu, true},
		{"falar com atendente", ShortcutHuman, true},
		{"I want to go back to the dates", "", false},
		{"book", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := s.Detect(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShortcutChoiceIDRoundTrip(t *testing.T) {
	for _, s := range []Shortcut{ShortcutBack, ShortcutMenu, ShortcutHuman} {
		got, ok := ShortcutFromID(s.ChoiceID())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ShortcutFromID("nav_unknown")
	assert.False(t, ok)
	_, ok = ShortcutFromID("day_2026-02-10")
	assert.False(t, ok)
}

func TestNilShortcuts(t *testing.T) {
	var s *Shortcuts
	_, ok := s.Detect("back")
	assert.False(t, ok)
}
