package common

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so TOML values like "8h" or "30s" decode
// through encoding.TextUnmarshaler. The embedded duration keeps the usual
// arithmetic and String behavior at call sites.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
