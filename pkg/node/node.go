package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/exe"
	"github.com/regtestd/regtestd/pkg/jsonrpc"
	"github.com/regtestd/regtestd/pkg/logging"
	"github.com/regtestd/regtestd/pkg/probe"
	"github.com/regtestd/regtestd/pkg/process"

	cp "github.com/otiai10/copy"
)

// ErrEarlyExit means the daemon kept dying before its RPC endpoint answered,
// across every respawn attempt.
var ErrEarlyExit = errors.New("node exited before becoming ready")

// Node is a running full-node fixture. Client is live once New returns; it
// is a borrowed capability that must not be used after Teardown.
type Node struct {
	logging.Logging

	// Client talks JSON-RPC to the node.
	Client *jsonrpc.Client

	conf   Conf
	env    *config.EnvConfig
	handle *process.Handle
	synth  synthConfig
}

// New starts a node with the default configuration and blocks until its RPC
// endpoint answers.
func New(env *config.EnvConfig) (*Node, error) {
	conf := DefaultConf()
	return NewWithConf(env, &conf)
}

// NewWithConf starts a node with the given configuration. Every error path
// reclaims whatever was provisioned; on success the caller owns the fixture
// and must call Teardown.
func NewWithConf(env *config.EnvConfig, conf *Conf) (*Node, error) {
	c := *conf
	c.withDefaults()

	path, err := exe.NewLocator(env).Locate(c.Version, c.ExePath)
	if err != nil {
		return nil, err
	}

	log := logging.NewLogging(logging.L().Named("node"))

	for attempt := 1; ; attempt++ {
		n, err := spawnOnce(env, &c, path)
		if err == nil {
			n.Logging = log
			return n, nil
		}

		// ephemeral ports are handed out unbound; another process can
		// steal one before the daemon binds it. A pre-readiness death is
		// therefore retried with fresh ports.
		if errors.Is(err, probe.ErrProcessDied) && attempt < c.Attempts {
			log.S().Warnw("node exited early, respawning with fresh ports",
				"attempt", attempt, "remaining", c.Attempts-attempt, "err", err)
			continue
		}
		if errors.Is(err, probe.ErrProcessDied) {
			return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrEarlyExit, err, attempt)
		}
		return nil, err
	}
}

// spawnOnce performs a single allocate-synthesize-spawn-await cycle.
func spawnOnce(env *config.EnvConfig, c *Conf, path string) (*Node, error) {
	portCount := 1
	if c.P2P {
		portCount = 2
	}
	allocated, err := c.Allocator.Allocate(portCount)
	if err != nil {
		return nil, err
	}

	wd, err := ResolveWorkDir(c.TmpDir, c.StaticDir, env, "tapyrusd")
	if err != nil {
		c.Allocator.Release(allocated...)
		return nil, err
	}

	if c.SeedDir != "" {
		if err := cp.Copy(c.SeedDir, wd.Path()); err != nil {
			c.Allocator.Release(allocated...)
			wd.Discard()
			return nil, fmt.Errorf("failed to copy seed dir: %w", err)
		}
	}

	synth, err := synthesize(c, wd, allocated)
	if err != nil {
		c.Allocator.Release(allocated...)
		wd.Discard()
		return nil, err
	}

	output := process.OutputDiscard
	if c.ViewStdout {
		output = process.OutputStream
	}

	// ownership of ports and (for temp dirs) the workdir transfers to the
	// handle here; all further error paths go through handle.Teardown.
	ownedDir := wd.Path()
	if wd.Persistent() {
		ownedDir = ""
	}

	args := append([]string{
		"-conf=" + synth.confFile,
		"-datadir=" + synth.dataDir,
	}, c.Args...)

	handle, err := process.Spawn(process.SpawnOpts{
		Path:          path,
		Args:          args,
		Label:         "tapyrusd",
		Output:        output,
		WorkDir:       ownedDir,
		Ports:         allocated,
		Allocator:     c.Allocator,
		GracePeriod:   env.Timing.GracePeriod.Duration,
		KillWait:      env.Timing.KillWait.Duration,
		RemoveRetries: env.Timing.RemoveRetries,
	})
	if err != nil {
		return nil, err
	}

	client := jsonrpc.New("http://"+synth.RPCSocket(), synth.cookieFile)

	ctx, cancel := context.WithTimeout(context.Background(), env.Timing.ReadyTimeout.Duration)
	defer cancel()

	ready := func() (bool, string, error) {
		if err := client.Call(ctx, "getblockchaininfo", nil, nil); err != nil {
			return false, "rpc endpoint not answering", err
		}
		return true, "rpc endpoint ready", nil
	}

	if err := probe.WaitReady(ctx, handle, env.Timing.ReadyInterval.Duration, ready); err != nil {
		_ = handle.Teardown()
		return nil, err
	}

	return &Node{
		Client: client,
		conf:   *c,
		env:    env,
		handle: handle,
		synth:  synth,
	}, nil
}

// Teardown stops the node and reclaims its resources. Idempotent; cleanup
// problems are returned as warnings and never fail a test.
func (n *Node) Teardown() error {
	return n.handle.Teardown()
}

// RPCSocket returns the host:port of the node's JSON-RPC endpoint.
func (n *Node) RPCSocket() string { return n.synth.RPCSocket() }

// P2PSocket returns the host:port of the p2p endpoint, or "" when p2p is
// disabled.
func (n *Node) P2PSocket() string { return n.synth.P2PSocket() }

// CookieFile returns the path of the RPC auth cookie.
func (n *Node) CookieFile() string { return n.synth.cookieFile }

// WorkDir returns the node's working directory.
func (n *Node) WorkDir() string { return n.synth.workDir.path }

// DataDir returns the node's data directory.
func (n *Node) DataDir() string { return n.synth.dataDir }

// Pid returns the daemon's process id.
func (n *Node) Pid() int { return n.handle.Pid() }

// ChainInfo is the subset of getblockchaininfo the fixtures care about.
type ChainInfo struct {
	Chain                string `json:"chain"`
	Blocks               int    `json:"blocks"`
	BestBlockHash        string `json:"bestblockhash"`
	InitialBlockDownload bool   `json:"initialblockdownload"`
}

// ChainInfo queries the node's view of the chain.
func (n *Node) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := n.Client.Call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// NewAddress returns a fresh wallet address.
func (n *Node) NewAddress(ctx context.Context) (string, error) {
	var addr string
	if err := n.Client.Call(ctx, "getnewaddress", nil, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

// Generate mines count blocks to a fresh address, signing with the dev
// network's test key.
func (n *Node) Generate(ctx context.Context, count int) ([]string, error) {
	addr, err := n.NewAddress(ctx)
	if err != nil {
		return nil, err
	}
	return n.GenerateToAddress(ctx, count, addr)
}

// GenerateToAddress mines count blocks paying addr.
func (n *Node) GenerateToAddress(ctx context.Context, count int, addr string) ([]string, error) {
	var hashes []string
	err := n.Client.Call(ctx, "generatetoaddress",
		[]interface{}{count, addr, SignerPrivateKey}, &hashes)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// SendToAddress pays amount to addr from the node wallet and returns the
// txid.
func (n *Node) SendToAddress(ctx context.Context, addr string, amount float64) (string, error) {
	var txid string
	err := n.Client.Call(ctx, "sendtoaddress", []interface{}{addr, amount}, &txid)
	if err != nil {
		return "", err
	}
	return txid, nil
}
