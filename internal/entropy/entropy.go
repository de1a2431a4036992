// Package entropy measures how random a candidate token looks.
//
// Scores are Shannon entropy normalized by the maximum entropy a token of the
// same length could have, so every score falls in [0,1] regardless of length.
package entropy

import (
	"math"
	"strings"
)

const (
	// DefaultThreshold is the normalized score above which a token is high entropy.
	DefaultThreshold = 0.55

	// DefaultMinLength is the shortest token that can be scored.
	// Entropy over shorter strings is too noisy to be useful.
	DefaultMinLength = 16
)

// Scorer scores tokens against a threshold and a minimum length.
type Scorer struct {
	Threshold float64
	MinLength int
}

// Default returns a Scorer with DefaultThreshold and DefaultMinLength.
func Default() Scorer {
	return Scorer{Threshold: DefaultThreshold, MinLength: DefaultMinLength}
}

// Shannon returns the Shannon entropy of s in bits per byte.
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	n := float64(len(s))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Normalized returns Shannon(s) divided by log2(len(s)), clamped to [0,1].
// Tokens shorter than two bytes score 0.
func Normalized(s string) float64 {
	if len(s) < 2 {
		return 0
	}
	v := Shannon(s) / math.Log2(float64(len(s)))
	if v > 1 {
		return 1
	}
	return v
}

// Score returns the normalized entropy of token, or 0 when the token is too
// short or made of a single character class (all digits, all hex, all lower
// or all upper case letters). Single-class tokens are scored only when
// corroborated by another signal such as a secret-like variable name.
func (s Scorer) Score(token string, corroborated bool) float64 {
	if len(token) < s.minLength() {
		return 0
	}
	if !corroborated && SingleClass(token) {
		return 0
	}
	return Normalized(token)
}

// IsHigh reports whether token scores above the threshold.
func (s Scorer) IsHigh(token string, corroborated bool) bool {
	return s.Score(token, corroborated) > s.threshold()
}

func (s Scorer) minLength() int {
	if s.MinLength <= 0 {
		return DefaultMinLength
	}
	return s.MinLength
}

func (s Scorer) threshold() float64 {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// SingleClass reports whether every byte of s belongs to one common class:
// decimal digits, hex digits, lowercase letters or uppercase letters.
func SingleClass(s string) bool {
	if s == "" {
		return true
	}
	return all(s, isDigit) || all(s, isHex) || all(s, isLower) || all(s, isUpper)
}

func all(s string, fn func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !fn(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// tokenBreak lists bytes that end a candidate token besides whitespace.
const tokenBreak = "\"'`"

// Token returns the contiguous run of non-whitespace, non-quote bytes in line
// starting at from, along with its end offset.
func Token(line string, from int) (string, int) {
	if from < 0 || from >= len(line) {
		return "", from
	}
	end := from
	for end < len(line) {
		c := line[end]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || strings.IndexByte(tokenBreak, c) >= 0 {
			break
		}
		end++
	}
	return line[from:end], end
}
