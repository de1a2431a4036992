package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShannon(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"empty", "", 0},
		{"single repeated byte", "aaaaaaaaaaaaaaaaaaaa", 0},
		{"two symbols evenly", "abababababababababab", 1},
		{"four symbols evenly", "abcdabcdabcdabcd", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Shannon(tt.in), 1e-9)
		})
	}
}

func TestNormalized(t *testing.T) {
	t.Run("bounded to unit interval", func(t *testing.T) {
		for _, s := range []string{"ab", "abcd", "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "zzzzzzzzzzzzzzzz"} {
			v := Normalized(s)
			assert.GreaterOrEqual(t, v, 0.0, s)
			assert.LessOrEqual(t, v, 1.0, s)
		}
	})

	t.Run("short tokens score zero", func(t *testing.T) {
		assert.Zero(t, Normalized(""))
		assert.Zero(t, Normalized("a"))
	})

	t.Run("hex digest", func(t *testing.T) {
		assert.InDelta(t, 0.781, Normalized("7f8a9d1c2b3e4f5a6b7c8d9e0f1a2b3c"), 0.001)
	})
}

func TestScorer_Score(t *testing.T) {
	s := Default()

	t.Run("below minimum length", func(t *testing.T) {
		assert.Zero(t, s.Score("Zx81nQv02Lm", false))
		assert.False(t, s.IsHigh("Zx81nQv02Lm", true))
	})

	t.Run("mixed class random token", func(t *testing.T) {
		assert.True(t, s.IsHigh("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", false))
	})

	t.Run("hex token needs corroboration", func(t *testing.T) {
		hex := "7f8a9d1c2b3e4f5a6b7c8d9e0f1a2b3c"
		assert.Zero(t, s.Score(hex, false))
		assert.False(t, s.IsHigh(hex, false))
		assert.True(t, s.IsHigh(hex, true))
	})

	t.Run("low entropy mixed token", func(t *testing.T) {
		assert.False(t, s.IsHigh("aAaAaAaAaAaAaAaAaAaA", false))
	})

	t.Run("zero value scorer uses defaults", func(t *testing.T) {
		var zero Scorer
		assert.Equal(t, s.IsHigh("wJalrXUtnFEMI/K7MDENG", false), zero.IsHigh("wJalrXUtnFEMI/K7MDENG", false))
		assert.Zero(t, zero.Score("short", false))
	})
}

func TestSingleClass(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0123456789", true},
		{"deadbeef0042", true},
		{"DEADBEEF", true},
		{"lowercaseonly", true},
		{"UPPERCASEONLY", true},
		{"MixedCase", false},
		{"abc-123", false},
		{"g0123", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SingleClass(tt.in))
		})
	}
}

func TestToken(t *testing.T) {
	line := `token = "abc123XYZ" other`

	tok, end := Token(line, 9)
	assert.Equal(t, "abc123XYZ", tok)
	assert.Equal(t, 18, end)

	tok, end = Token(line, 20)
	assert.Equal(t, "other", tok)
	assert.Equal(t, len(line), end)

	tok, _ = Token(line, len(line))
	assert.Empty(t, tok)
}
