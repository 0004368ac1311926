package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Special Schools", "special schools"},
		{"  special-schools ", "special schools"},
		{"Special\t\tSchools!", "special schools"},
		{"STRASSE", "strasse"},
		{"Straße", "strasse"},
		{"Crèche", "crèche"},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.in))
		})
	}
}

func TestSimilarLabels(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal after normalization", "State-funded primary", "state funded primary", true},
		{"reordered words", "Primary state-funded", "state funded primary", true},
		{"one typo", "Sheffield", "Sheffeild", true},
		{"short labels need exact", "Boys", "Bays", false},
		{"unrelated", "Total", "Special", false},
		{"three edits", "Academies", "Acadxxxes", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimilarLabels(tt.a, tt.b))
			assert.Equal(t, tt.want, SimilarLabels(tt.b, tt.a), "symmetric")
		})
	}
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance([]rune("kitten"), []rune("kitten"), 2))
	assert.Equal(t, 2, editDistance([]rune("kitten"), []rune("sitten2"), 2))
	assert.Equal(t, 3, editDistance([]rune("kitten"), []rune("sitting"), 2), "stops at limit+1")
	assert.Equal(t, 3, editDistance([]rune("a"), []rune("abcdef"), 2))
}
