package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransliterateCyrillic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ascii passes through", "party_parrot", "party_parrot"},
		{"simple cyrillic", "привет", "privet"},
		{"mixed case", "Привет", "Privet"},
		{"digraphs", "жук", "zhuk"},
		{"hard and soft signs vanish into underscores", "объект", "ob_ekt"},
		{"spaces and punctuation collapse", "мой эмодзи!", "moy_emodzi"},
		{"repeated separators collapse to one", "a - - b", "a_b"},
		{"leading and trailing separators are trimmed", "--fire--", "fire"},
		{"digits survive", "топ100", "top100"},
		{"non-cyrillic unicode becomes underscores", "caférouge", "caf_rouge"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, transliterateCyrillic(tc.input))
		})
	}
}
