package config

import "time"

// Duration wraps time.Duration so it can be decoded from a TOML string
// such as "20s" or "300s", following the teacher pack's settings.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) String() string {
	return d.Duration.String()
}

// Set implements the same textual-duration parsing the pack's config
// types use, so the TOML decoder can assign plain strings to a Duration.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err == nil {
		d.Duration = v
	}
	return err
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
