package rules

import (
	"testing"

	"github.com/fyrsmithlabs/sieve/internal/entropy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordAssignment(t *testing.T) {
	h := keywordAssignment(entropy.Default())

	t.Run("high entropy hex secret", func(t *testing.T) {
		line := "const secret = '7f8a9d1c2b3e4f5a6b7c8d9e0f1a2b3c';"
		matches := h(line)
		require.Len(t, matches, 1)

		m := matches[0]
		assert.Equal(t, "7f8a9d1c2b3e4f5a6b7c8d9e0f1a2b3c", line[m.Start:m.End])
		assert.Equal(t, 70, m.Score)
		assert.Contains(t, m.Reason, "high entropy")
	})

	t.Run("json style key", func(t *testing.T) {
		line := `{"api_key": "Zx81nQv02LmKd93PqRtYw7"}`
		matches := h(line)
		require.Len(t, matches, 1)
		assert.Equal(t, "Zx81nQv02LmKd93PqRtYw7", line[matches[0].Start:matches[0].End])
		assert.GreaterOrEqual(t, matches[0].Score, 70)
	})

	t.Run("sk shaped value gets a bonus", func(t *testing.T) {
		matches := h(`token = "sk-aaaaaaaaaaaaaaaaaaaaaaaa"`)
		require.Len(t, matches, 1)
		assert.Equal(t, 70, matches[0].Score)
	})

	t.Run("short value is penalized", func(t *testing.T) {
		matches := h(`password = "123"`)
		require.Len(t, matches, 1)
		assert.Equal(t, 20, matches[0].Score)
	})

	t.Run("bare function call scores low", func(t *testing.T) {
		matches := h(`token := os.Getenv("TOKEN")`)
		require.Len(t, matches, 1)
		assert.Less(t, matches[0].Score, 40)
	})

	t.Run("prose value is penalized", func(t *testing.T) {
		matches := h(`password = "please enter your password here"`)
		for _, m := range matches {
			assert.Less(t, m.Score, 40)
		}
	})

	t.Run("no trigger word", func(t *testing.T) {
		assert.Empty(t, h(`name = "Zx81nQv02LmKd93PqRtYw7"`))
	})

	t.Run("comparison is not an assignment", func(t *testing.T) {
		for _, m := range h(`if token == "" {`) {
			assert.Less(t, m.Score, 40)
		}
	})
}

func TestEntropyNearKeyword(t *testing.T) {
	h := entropyNearKeyword(entropy.Default())

	t.Run("random token near keyword", func(t *testing.T) {
		line := `curl -H "X-Auth: Zx81nQv02LmKd93PqRtYw7" https://api`
		matches := h(line)
		require.Len(t, matches, 1)
		assert.Equal(t, "Zx81nQv02LmKd93PqRtYw7", line[matches[0].Start:matches[0].End])
		assert.Greater(t, matches[0].Score, proximityBase)
		assert.LessOrEqual(t, matches[0].Score, proximityBase+proximityScale)
	})

	t.Run("no keyword on line", func(t *testing.T) {
		assert.Empty(t, h(`value Zx81nQv02LmKd93PqRtYw7`))
	})

	t.Run("plain words are not corroborated", func(t *testing.T) {
		assert.Empty(t, h(`// the token is documented in getconfigurationvalue`))
	})
}

func TestHeuristicsArePure(t *testing.T) {
	s := Default()
	line := `const secret = '7f8a9d1c2b3e4f5a6b7c8d9e0f1a2b3c';`
	for _, r := range s.Heuristics() {
		assert.Equal(t, r.Find(line), r.Find(line), r.ID)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-5))
	assert.Equal(t, 55, clamp(55))
	assert.Equal(t, 100, clamp(130))
}
