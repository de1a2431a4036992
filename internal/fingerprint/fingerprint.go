// Package fingerprint derives the stable identity of a finding.
//
// A fingerprint hashes the rule id, the normalized matched text and the file
// path. The line number is deliberately excluded so a finding keeps its
// identity when unrelated lines are inserted or removed above it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Fingerprint is a lowercase hex SHA-256 digest.
type Fingerprint string

// ShortLen is the number of hex characters shown by Short.
const ShortLen = 12

// String returns the full digest.
func (f Fingerprint) String() string { return string(f) }

// Short returns the first ShortLen characters for display.
func (f Fingerprint) Short() string {
	if len(f) <= ShortLen {
		return string(f)
	}
	return string(f[:ShortLen])
}

// Valid reports whether f looks like a full SHA-256 hex digest.
func (f Fingerprint) Valid() bool {
	if len(f) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(f); i++ {
		c := f[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Of computes the fingerprint of a finding. It is pure: the same inputs
// always give the same digest, across processes and platforms.
func Of(ruleID, matchedText, filePath string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(matchedText)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizePath(filePath)))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Normalize trims surrounding whitespace and one layer of matching quotes.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// NormalizePath converts to forward slashes and strips a leading "./".
func NormalizePath(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
