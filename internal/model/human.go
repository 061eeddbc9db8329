// human readable and writable stdlib types
// which can be used inside config file
package model

import (
	"errors"
	"os"
	"time"
)

// Duration accepts the time.ParseDuration syntax, e.g. "24h" or "90s".
// Environment variables in the text are expanded first.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if d == nil {
		return errors.New("can't unmarshal to nil")
	}
	parsed, err := time.ParseDuration(os.ExpandEnv(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}
