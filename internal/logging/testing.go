package logging

import (
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries in memory for assertions. It does not redact,
// so assertions see exactly what callers passed.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger enabled at every level.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{Logger: &Logger{zap: zap.New(core)}, logs: logs}
}

// Entries returns everything logged so far.
func (t *TestLogger) Entries() []observer.LoggedEntry {
	return t.logs.All()
}

// Reset discards recorded entries.
func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

// Field returns the value logged under key by the first entry whose message
// is msg.
func (t *TestLogger) Field(msg, key string) (interface{}, bool) {
	for _, e := range t.logs.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssertLogged fails tb unless an entry at lvl contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, lvl zapcore.Level, substr string) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if e.Level == lvl && strings.Contains(e.Message, substr) {
			return
		}
	}
	tb.Errorf("no %s entry containing %q", lvl, substr)
}

// AssertNotContains fails tb if literal appears in any message, string field
// or error field. Pass it the raw value of a planted secret.
func (t *TestLogger) AssertNotContains(tb testing.TB, literal string) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if strings.Contains(e.Message, literal) {
			tb.Errorf("secret in message %q", e.Message)
		}
		for _, f := range e.Context {
			if strings.Contains(fieldText(f), literal) {
				tb.Errorf("secret in field %q of %q", f.Key, e.Message)
			}
		}
	}
}

// AssertNoSecrets fails tb if any entry carries an unmasked sensitive key or
// a value matching SensitivePatterns.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	patterns := make([]*regexp.Regexp, len(SensitivePatterns))
	for i, p := range SensitivePatterns {
		patterns[i] = regexp.MustCompile(p)
	}
	keys := make(map[string]bool, len(SensitiveKeys))
	for _, k := range SensitiveKeys {
		keys[k] = true
	}

	for _, e := range t.logs.All() {
		texts := []string{e.Message}
		for _, f := range e.Context {
			s := fieldText(f)
			if keys[strings.ToLower(f.Key)] && s != "" && !strings.HasPrefix(s, "[REDACTED") {
				tb.Errorf("sensitive field %q logged in %q", f.Key, e.Message)
			}
			texts = append(texts, s)
		}
		for _, s := range texts {
			for _, re := range patterns {
				if re.MatchString(s) {
					tb.Errorf("credential-shaped value logged in %q", e.Message)
				}
			}
		}
	}
}

func fieldText(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
	}
	return ""
}
