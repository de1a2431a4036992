package logging

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const mask = "[REDACTED]"

// RedactedString logs only the length of val under key.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactor masks sensitive keys and pattern matches.
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func (r *redactor) sensitive(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func (r *redactor) scrub(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllLiteralString(s, mask)
	}
	return s
}

// field returns f with its value masked or scrubbed.
func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.sensitive(f.Key) {
		return zap.String(f.Key, mask)
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, r.scrub(f.String))
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return zap.String(f.Key, r.scrub(err.Error()))
		}
	}
	return f
}

// redactingEncoder applies a redactor to fields added with With and to
// every entry.
type redactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (zapcore.Encoder, error) {
	if !cfg.Enabled {
		return base, nil
	}
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	r := &redactor{keys: make(map[string]struct{}, len(cfg.Fields)), patterns: patterns}
	for _, k := range cfg.Fields {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	return &redactingEncoder{Encoder: base, r: r}, nil
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.r.sensitive(key) {
		val = mask
	}
	e.Encoder.AddString(key, e.r.scrub(val))
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.r.sensitive(key) {
		e.Encoder.AddString(key, mask)
		return
	}
	e.Encoder.AddString(key, e.r.scrub(string(val)))
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.r.sensitive(key) {
		e.Encoder.AddString(key, mask)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r.sensitive(key) {
		e.Encoder.AddString(key, mask)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

// EncodeEntry scrubs the message and per-call fields, which the wrapped
// encoder writes without going through the Add methods above.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.r.scrub(ent.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.r.field(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}
