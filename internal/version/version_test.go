package version

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		major, minor int
		want         Type
	}{
		{1, 0, TypeMajor},
		{2, 0, TypeMajor},
		{1, 1, TypeMinor},
		{1, 2, TypeMinor},
		{2, 1, TypeMinor},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d.%d", tt.major, tt.minor), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.major, tt.minor))
		})
	}
}

func TestClassifyProperty(t *testing.T) {
	for major := 0; major < 20; major++ {
		for minor := 0; minor < 20; minor++ {
			want := TypeMinor
			if minor == 0 {
				want = TypeMajor
			}
			require.Equal(t, want, Classify(major, minor), "%d.%d", major, minor)
		}
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.0", Format(1, 0, 0))
	assert.Equal(t, "1.2.3", Format(1, 2, 3))
	assert.Equal(t, "1000.2000.3000", Format(1000, 2000, 3000))
	assert.Equal(t, "2.1", Number{Major: 2, Minor: 1}.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		label string
		want  Number
	}{
		{"1.0", Number{1, 0, 0}},
		{"v2.1", Number{2, 1, 0}},
		{"1.2.3", Number{1, 2, 3}},
		{" 10.20 ", Number{10, 20, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := Parse(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Format(got.Major, got.Minor, got.Patch), got.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, label := range []string{"", "1", "1.2.3.4", "a.b", "1.-1", "01.2", "1..2", "latest"} {
		t.Run(label, func(t *testing.T) {
			_, err := Parse(label)
			assert.Error(t, err)
		})
	}
}

func TestIsLatest(t *testing.T) {
	assert.True(t, IsLatest("latest"))
	assert.True(t, IsLatest(" LATEST "))
	assert.False(t, IsLatest("1.0"))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, Compare(Number{1, 2, 3}, Number{1, 2, 3}))
	assert.Equal(t, -1, Compare(Number{1, 9, 9}, Number{2, 0, 0}))
	assert.Equal(t, 1, Compare(Number{1, 10, 0}, Number{1, 9, 0}))
	assert.Equal(t, -1, Compare(Number{1, 1, 0}, Number{1, 1, 1}))
	assert.True(t, Less(Number{1, 0, 0}, Number{1, 0, 1}))
	assert.False(t, Less(Number{1, 0, 0}, Number{1, 0, 0}))
}

func TestCompare_ExtremeComponents(t *testing.T) {
	assert.Equal(t, 1, Compare(Number{math.MaxInt, 0, 0}, Number{-1, 0, 0}))
	assert.Equal(t, -1, Compare(Number{1, math.MinInt, 0}, Number{1, 1, 0}))
	assert.Equal(t, 1, Compare(Number{1, 1, math.MaxInt}, Number{1, 1, math.MinInt}))
}

func TestNext(t *testing.T) {
	current := Number{2, 3, 4}

	assert.Equal(t, Number{3, 0, 0}, Next(current, BumpMajor))
	assert.Equal(t, Number{2, 4, 0}, Next(current, BumpMinor))
	assert.Equal(t, Number{2, 3, 5}, Next(current, BumpPatch))
	assert.Equal(t, current, Next(current, BumpNone))
	assert.Equal(t, TypeMajor, Next(current, BumpMajor).Type())
	assert.Equal(t, TypeMinor, Next(current, BumpMinor).Type())
}

func TestValidate(t *testing.T) {
	existing := []Number{{1, 0, 0}, {1, 1, 0}, {2, 0, 0}}

	assert.NoError(t, Validate(existing, Number{2, 0, 1}))
	assert.NoError(t, Validate(nil, Initial))
	assert.ErrorIs(t, Validate(existing, Number{2, 0, 0}), ErrDuplicateVersion)
	assert.ErrorIs(t, Validate(existing, Number{1, 2, 0}), ErrVersionRegression)
}

func TestMax(t *testing.T) {
	_, ok := Max(nil)
	assert.False(t, ok)

	got, ok := Max([]Number{{1, 2, 0}, {1, 10, 0}, {1, 9, 9}})
	require.True(t, ok)
	assert.Equal(t, Number{1, 10, 0}, got)
}

func TestSelector(t *testing.T) {
	published := []Number{{1, 0, 0}, {1, 1, 0}, {1, 1, 2}, {2, 0, 0}, {2, 1, 0}}

	tests := []struct {
		label string
		want  Number
		found bool
	}{
		{"*", Number{2, 1, 0}, true},
		{"1.*", Number{1, 1, 2}, true},
		{"1.1.*", Number{1, 1, 2}, true},
		{"1.1", Number{1, 1, 0}, true},
		{"v2.0", Number{2, 0, 0}, true},
		{"1.1.2", Number{1, 1, 2}, true},
		{"3.*", Number{}, false},
		{"1.5", Number{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			sel, err := ParseSelector(tt.label)
			require.NoError(t, err)
			got, found := sel.Resolve(published)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSelectorRejects(t *testing.T) {
	for _, label := range []string{"1", "*.1", "1.*.2", "x.*", "1.2.3.4"} {
		t.Run(label, func(t *testing.T) {
			_, err := ParseSelector(label)
			assert.Error(t, err)
		})
	}
}

func TestSelectorWildcard(t *testing.T) {
	sel, err := ParseSelector("1.*")
	require.NoError(t, err)
	assert.True(t, sel.Wildcard())
	assert.Equal(t, "1.*", sel.String())

	sel, err = ParseSelector("1.0")
	require.NoError(t, err)
	assert.False(t, sel.Wildcard())
}
