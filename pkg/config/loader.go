package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"

	"github.com/regtestd/regtestd/pkg/logging"
)

const (
	EnvRegtestdHomeDir      = "REGTESTD_HOME"
	EnvRegtestdDownload     = "REGTESTD_DOWNLOAD"
	EnvRegtestdDownloadURL  = "REGTESTD_DOWNLOAD_ENDPOINT"
	EnvRegtestdSkipDownload = "REGTESTD_SKIP_DOWNLOAD"
)

var defaults = EnvConfig{
	Timing: TimingConfig{
		ReadyInterval: Duration{500 * time.Millisecond},
		ReadyTimeout:  Duration{30 * time.Second},
		GracePeriod:   Duration{10 * time.Second},
		KillWait:      Duration{2 * time.Second},
		RemoveRetries: 3,
	},
}

func (e *EnvConfig) Load() error {
	// calculate home directory; use env var, or fall back to $HOME/regtestd
	// otherwise.
	var home string
	if v, ok := os.LookupEnv(EnvRegtestdHomeDir); ok {
		home = v
	} else {
		v, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to obtain user home dir: %w", err)
		}
		home = filepath.Join(v, "regtestd")
	}

	return e.LoadAt(home)
}

// LoadAt is Load with an explicit home directory.
func (e *EnvConfig) LoadAt(home string) error {
	switch fi, err := os.Stat(home); {
	case os.IsNotExist(err):
		logging.S().Infof("creating home directory at %s", home)
		if err := os.MkdirAll(home, 0777); err != nil {
			return fmt.Errorf("failed to create home directory at %s: %w", home, err)
		}
	case err == nil && !fi.IsDir():
		return fmt.Errorf("home path is not a directory: %s", home)
	case err != nil:
		return err
	}

	// ensure home and children directories exist.
	e.dirs = Directories{home}
	for _, d := range []string{
		e.dirs.Home(),
		e.dirs.Cache(),
		e.dirs.Work(),
	} {
		if err := ensureDir(d); err != nil {
			return fmt.Errorf("failed to check/create directory %s: %w", d, err)
		}
	}

	// parse the .env.toml file, if it exists.
	f := filepath.Join(e.dirs.Home(), ".env.toml")
	if _, err := os.Stat(f); err == nil {
		if _, err = toml.DecodeFile(f, e); err != nil {
			return fmt.Errorf("found .env.toml at %s, but failed to parse: %w", f, err)
		}
		logging.S().Infof(".env.toml loaded from: %s", f)
	} else {
		logging.S().Debugf("no .env.toml found at %s; running with defaults", f)
	}

	// env vars beat the file.
	if _, ok := os.LookupEnv(EnvRegtestdDownload); ok {
		e.Download.Enabled = true
	}
	if _, ok := os.LookupEnv(EnvRegtestdSkipDownload); ok {
		e.Download.Enabled = false
	}
	if v, ok := os.LookupEnv(EnvRegtestdDownloadURL); ok {
		e.Download.Endpoint = v
	}

	// backfill anything left unset.
	if err := mergo.Merge(e, defaults); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}

	return validator.New().Struct(e)
}

// DecodeDaemonConfig decodes the free-form [daemons.<name>] table from
// .env.toml into a typed struct.
func (e *EnvConfig) DecodeDaemonConfig(name string, out interface{}) error {
	cm, ok := e.Daemons[name]
	if !ok {
		return nil
	}
	return mapstructure.Decode(cm, out)
}

func ensureDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return os.MkdirAll(path, 0777)
	}
	if !fi.IsDir() {
		return fmt.Errorf("path %s exists, and it is not a directory", path)
	}
	return nil
}
