package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAtDefaults(t *testing.T) {
	home := t.TempDir()

	var env EnvConfig
	require.NoError(t, env.LoadAt(home))

	assert.DirExists(t, env.Dirs().Cache())
	assert.DirExists(t, env.Dirs().Work())

	assert.False(t, env.Download.Enabled)
	assert.Equal(t, 500*time.Millisecond, env.Timing.ReadyInterval.Duration)
	assert.Equal(t, 30*time.Second, env.Timing.ReadyTimeout.Duration)
	assert.Equal(t, 10*time.Second, env.Timing.GracePeriod.Duration)
	assert.Equal(t, 2*time.Second, env.Timing.KillWait.Duration)
	assert.Equal(t, 3, env.Timing.RemoveRetries)
}

func TestLoadAtParsesEnvToml(t *testing.T) {
	home := t.TempDir()
	toml := `
[download]
enabled = true
endpoint = "https://mirror.example.com/releases"

[timing]
ready_interval = "250ms"

[daemons.tapyrusd]
rpcthreads = 4
debug = "rpc"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env.toml"), []byte(toml), 0644))

	var env EnvConfig
	require.NoError(t, env.LoadAt(home))

	assert.True(t, env.Download.Enabled)
	assert.Equal(t, "https://mirror.example.com/releases", env.Download.Endpoint)

	// file value sticks; untouched fields fall back to defaults.
	assert.Equal(t, 250*time.Millisecond, env.Timing.ReadyInterval.Duration)
	assert.Equal(t, 30*time.Second, env.Timing.ReadyTimeout.Duration)

	var opts struct {
		RPCThreads int    `mapstructure:"rpcthreads"`
		Debug      string `mapstructure:"debug"`
	}
	require.NoError(t, env.DecodeDaemonConfig("tapyrusd", &opts))
	assert.Equal(t, 4, opts.RPCThreads)
	assert.Equal(t, "rpc", opts.Debug)

	// an unknown daemon table is not an error; out stays zeroed.
	var none struct {
		Anything string `mapstructure:"anything"`
	}
	require.NoError(t, env.DecodeDaemonConfig("missing", &none))
	assert.Empty(t, none.Anything)
}

func TestLoadAtEnvVarsBeatFile(t *testing.T) {
	home := t.TempDir()
	toml := `
[download]
enabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env.toml"), []byte(toml), 0644))

	t.Setenv(EnvRegtestdSkipDownload, "1")
	t.Setenv(EnvRegtestdDownloadURL, "https://archive.example.org")

	var env EnvConfig
	require.NoError(t, env.LoadAt(home))

	assert.False(t, env.Download.Enabled)
	assert.Equal(t, "https://archive.example.org", env.Download.Endpoint)
}

func TestLoadAtRejectsBadConfig(t *testing.T) {
	home := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(home, ".env.toml"),
		[]byte(`[download]`+"\n"+`endpoint = "not a url"`), 0644))

	var env EnvConfig
	require.Error(t, env.LoadAt(home))
}

func TestLoadAtRejectsFileAsHome(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	var env EnvConfig
	require.Error(t, env.LoadAt(file))
}

func TestLoadHonorsHomeEnvVar(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvRegtestdHomeDir, home)

	var env EnvConfig
	require.NoError(t, env.Load())
	assert.Equal(t, home, env.Dirs().Home())
}
