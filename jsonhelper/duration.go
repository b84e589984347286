// Package jsonhelper provides types that encode well in JSON and TOML configuration files.
package jsonhelper

import (
	"fmt"
	"time"
)

// Duration is [time.Duration] in its string form, such as "1.5s" or "300ms".
// It implements [encoding.TextMarshaler] and [encoding.TextUnmarshaler].
type Duration time.Duration

// String implements [fmt.Stringer].
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements [encoding.TextMarshaler.MarshalText].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler.UnmarshalText].
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", text, err)
	}
	*d = Duration(duration)
	return nil
}
