package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that koanf decodes from strings such as
// "300ms" in YAML and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	switch {
	case err != nil:
		return fmt.Errorf("duration %q: %w", b, err)
	case v < 0:
		return fmt.Errorf("duration %q is negative", b)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders d the way UnmarshalText reads it; JSON uses it too.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
