package config

import (
	"time"
)

type ConfigMap map[string]interface{}

// EnvConfig contains the process-wide environment configuration. It is
// populated by coalescing values from these sources, in descending order of
// precedence:
//
//  1. environment variables.
//  2. .env.toml.
//  3. default fallbacks.
type EnvConfig struct {
	dirs Directories

	Download DownloadConfig       `toml:"download"`
	Timing   TimingConfig         `toml:"timing"`
	Daemons  map[string]ConfigMap `toml:"daemons"`
}

func (e EnvConfig) Dirs() Directories {
	return e.dirs
}

// DownloadConfig controls the binary auto-download path of the locator.
// Downloads are off by default; tests opt in per environment.
type DownloadConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint" validate:"omitempty,url"`
}

// TimingConfig carries the policy constants that govern readiness polling and
// teardown. They are deliberately configurable; hard-coding them is the most
// likely source of flaky fixtures.
type TimingConfig struct {
	ReadyInterval Duration `toml:"ready_interval"`
	ReadyTimeout  Duration `toml:"ready_timeout"`
	GracePeriod   Duration `toml:"grace_period"`
	KillWait      Duration `toml:"kill_wait"`
	RemoveRetries int      `toml:"remove_retries" validate:"gte=0"`
}

// Duration wraps time.Duration so .env.toml can carry values like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}
