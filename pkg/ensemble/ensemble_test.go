package ensemble

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/exe"
	"github.com/regtestd/regtestd/pkg/indexer"
	"github.com/regtestd/regtestd/pkg/node"
)

func TestSpecRejectsDuplicateTags(t *testing.T) {
	spec := NewSpec()
	spec.AddIndexer("primary", indexer.DefaultConf())

	assert.Panics(t, func() {
		spec.AddIndexer("primary", indexer.DefaultConf())
	})
}

func TestSpecEnablesP2PForLegacyIndexers(t *testing.T) {
	spec := NewSpec()
	assert.False(t, spec.nodeConf.P2P)

	conf := indexer.DefaultConf()
	conf.Version = exe.VersionSpec{Daemon: exe.DaemonIndexer, Version: "v0.4.0"}
	spec.AddIndexer("legacy", conf)

	assert.True(t, spec.nodeConf.P2P)
}

func TestSpecKeepsNodeP2POffForImportIndexers(t *testing.T) {
	spec := NewSpec()
	spec.AddIndexer("modern", indexer.DefaultConf())

	assert.False(t, spec.nodeConf.P2P)
}

func TestStartFailsWhenNodeCannotStart(t *testing.T) {
	env := new(config.EnvConfig)
	require.NoError(t, env.LoadAt(t.TempDir()))

	nodeConf := node.DefaultConf()
	nodeConf.ExePath = "/nonexistent/tapyrusd"

	spec := NewSpec().WithNode(nodeConf)
	spec.AddIndexer("a", indexer.DefaultConf())

	_, err := Start(env, spec)
	require.Error(t, err)
	assert.ErrorIs(t, err, exe.ErrNotExecutable)
}

// TestEnsembleIntegration exercises the full fixture stack against real
// binaries. Set TAPYRUSD_EXEC and ELECTRS_EXEC to run it.
func TestEnsembleIntegration(t *testing.T) {
	nodeExe := os.Getenv("TAPYRUSD_EXEC")
	idxExe := os.Getenv("ELECTRS_EXEC")
	if nodeExe == "" || idxExe == "" {
		t.Skip("TAPYRUSD_EXEC and ELECTRS_EXEC not set")
	}

	env := new(config.EnvConfig)
	require.NoError(t, env.LoadAt(t.TempDir()))

	spec := NewSpec()
	spec.AddIndexer("a", indexer.DefaultConf())
	spec.AddIndexer("b", indexer.DefaultConf())

	e := StartT(t, env, spec)

	ctx := context.Background()
	_, err := e.Node().Generate(ctx, 3)
	require.NoError(t, err)

	for _, tag := range []string{"a", "b"} {
		idx := e.Indexer(tag)
		require.NotNil(t, idx, "indexer %s missing", tag)
		require.NoError(t, idx.Trigger())
		require.NoError(t, idx.WaitHeight(ctx, 3), "indexer %s never caught up", tag)
	}

	// double Destroy must be safe; t.Cleanup fires the second one.
	e.Destroy()
}
