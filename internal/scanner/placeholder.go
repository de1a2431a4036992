package scanner

import (
	"path"
	"regexp"
	"strings"
)

// RedactionPlaceholder is the token written over repaired secrets. Values
// containing it are never reported again.
const RedactionPlaceholder = "REDACTED_SECRET"

var (
	maskRunRe   = regexp.MustCompile(`x{4,}|X{4,}|\*{4,}`)
	angleRe     = regexp.MustCompile(`<[A-Za-z0-9_\-. ]+>`)
	templateRe  = regexp.MustCompile(`\$\{[^}]*\}|\{\{[^}]*\}\}`)
	envRefRe    = regexp.MustCompile(`^\$[A-Za-z_][A-Za-z0-9_]*$`)
	yourValueRe = regexp.MustCompile(`(?i)^(?:your|my|insert|enter)[-_ .]`)
)

// inlineMarkers opt a line out of scanning. Matched case-insensitively.
var inlineMarkers = []string{
	"sieve:allow",
	"gitleaks:allow",
	"pragma: allowlist secret",
}

// dummyValues are whole values that are never real credentials.
var dummyValues = map[string]bool{
	"changeme":    true,
	"change_me":   true,
	"change-me":   true,
	"placeholder": true,
	"example":     true,
	"sample":      true,
	"dummy":       true,
	"fake":        true,
	"test":        true,
	"testing":     true,
	"secret":      true,
	"password":    true,
	"token":       true,
	"redacted":    true,
	"todo":        true,
	"fixme":       true,
	"null":        true,
	"nil":         true,
	"none":        true,
	"undefined":   true,
	"empty":       true,
}

// IsPlaceholder reports whether a matched value, or the line it sits on,
// follows a placeholder convention.
func IsPlaceholder(value, line string) bool {
	if strings.Contains(line, RedactionPlaceholder) {
		return true
	}
	lowerLine := strings.ToLower(line)
	for _, m := range inlineMarkers {
		if strings.Contains(lowerLine, m) {
			return true
		}
	}

	v := strings.Trim(strings.TrimSpace(value), "\"'`")
	if v == "" {
		return true
	}
	if strings.Contains(strings.ToUpper(v), "REDACTED") {
		return true
	}
	if dummyValues[strings.ToLower(v)] {
		return true
	}
	return maskRunRe.MatchString(v) ||
		angleRe.MatchString(v) ||
		templateRe.MatchString(v) ||
		envRefRe.MatchString(v) ||
		yourValueRe.MatchString(v)
}

// testDirs are path segments that mark test, fixture or example content.
var testDirs = map[string]bool{
	"test":      true,
	"tests":     true,
	"testdata":  true,
	"__tests__": true,
	"spec":      true,
	"fixture":   true,
	"fixtures":  true,
	"mock":      true,
	"mocks":     true,
	"example":   true,
	"examples":  true,
}

// IsTestPath reports whether a slash or OS path looks like test, fixture,
// mock or example content. Callers should pass paths relative to the scan
// root so that the root's own location does not count.
func IsTestPath(p string) bool {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	segments := strings.Split(p, "/")
	for _, seg := range segments[:len(segments)-1] {
		if testDirs[seg] {
			return true
		}
	}

	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	switch {
	case strings.HasSuffix(stem, "_test"),
		strings.HasSuffix(stem, ".test"),
		strings.HasSuffix(stem, ".spec"),
		strings.HasPrefix(stem, "test_"),
		strings.HasPrefix(stem, "mock_"),
		strings.HasPrefix(stem, "fake_"),
		strings.HasSuffix(base, ".example"),
		strings.HasSuffix(base, ".sample"):
		return true
	}
	return false
}

const previewMask = "*****"

// Preview renders a fixed-width masked form of a secret. Values of up to
// eight bytes are fully masked; longer ones keep the first and last three.
func Preview(secret string) string {
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:3] + previewMask + secret[len(secret)-3:]
}
