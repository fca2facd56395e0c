// Package indexer provisions a disposable blockchain-indexing daemon wired
// to a running node fixture, for use inside integration tests.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/electrum"
	"github.com/regtestd/regtestd/pkg/exe"
	"github.com/regtestd/regtestd/pkg/logging"
	"github.com/regtestd/regtestd/pkg/node"
	"github.com/regtestd/regtestd/pkg/ports"
	"github.com/regtestd/regtestd/pkg/probe"
	"github.com/regtestd/regtestd/pkg/process"
)

var (
	// ErrEarlyExit means the indexer kept dying before its Electrum
	// endpoint answered, across every respawn attempt.
	ErrEarlyExit = errors.New("indexer exited before becoming ready")
	// ErrNodeP2PRequired means the pinned indexer version syncs over p2p
	// but the node fixture was started without a p2p port.
	ErrNodeP2PRequired = errors.New("indexer version requires a node with p2p enabled")
)

// Conf describes one indexer fixture.
type Conf struct {
	// Args are extra command line arguments appended verbatim. Flags the
	// synthesizer owns (db-dir, network, cookie, daemon/electrum/monitoring
	// addresses) must not appear here.
	Args []string

	// ViewStderr streams the daemon's log output instead of discarding it.
	ViewStderr bool

	// HTTPEnabled additionally exposes the esplora HTTP endpoint.
	HTTPEnabled bool

	// Network must match the node fixture's network.
	Network string

	// TmpDir / StaticDir behave exactly as on the node fixture.
	TmpDir    string
	StaticDir string

	// Attempts is how many times to respawn with fresh ports when the
	// daemon exits before readiness.
	Attempts int

	// Version pins the daemon release.
	Version exe.VersionSpec

	// ExePath explicitly overrides binary resolution.
	ExePath string

	// Allocator is the port allocator to draw endpoints from; nil means
	// the process-wide default.
	Allocator *ports.Allocator
}

// DefaultConf returns the configuration used by New. The extra verbosity is
// cheap and makes post-mortem debugging of flaky runs possible.
func DefaultConf() Conf {
	return Conf{
		Args:     []string{"-vvv"},
		Network:  node.DefaultNetwork,
		Attempts: 3,
		Version:  exe.IndexerV0_5_1,
	}
}

func (c *Conf) withDefaults() {
	if c.Network == "" {
		c.Network = node.DefaultNetwork
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.Version.Daemon == "" {
		c.Version = exe.IndexerV0_5_1
	}
	if c.Allocator == nil {
		c.Allocator = ports.Default
	}
}

// Indexer is a running indexing-daemon fixture. Client is live once New
// returns; it is a borrowed capability that must not outlive Teardown.
type Indexer struct {
	logging.Logging

	// Client is an Electrum-protocol connection to the indexer.
	Client *electrum.Client

	// ElectrumURL is the host:port of the Electrum endpoint.
	ElectrumURL string

	// EsploraURL is the host:port of the esplora HTTP endpoint, or "" when
	// HTTP is disabled.
	EsploraURL string

	env    *config.EnvConfig
	conf   Conf
	nd     *node.Node
	handle *process.Handle
}

// New starts an indexer against n with the default configuration and blocks
// until its Electrum endpoint answers a handshake.
func New(env *config.EnvConfig, n *node.Node) (*Indexer, error) {
	conf := DefaultConf()
	return NewWithConf(env, n, &conf)
}

// NewWithConf starts an indexer against n with the given configuration.
func NewWithConf(env *config.EnvConfig, n *node.Node, conf *Conf) (*Indexer, error) {
	c := *conf
	c.withDefaults()

	if !c.Version.JSONRPCImport && n.P2PSocket() == "" {
		return nil, ErrNodeP2PRequired
	}

	path, err := exe.NewLocator(env).Locate(c.Version, c.ExePath)
	if err != nil {
		return nil, err
	}

	if err := leaveIBD(n); err != nil {
		return nil, err
	}

	log := logging.NewLogging(logging.L().Named("indexer"))

	for attempt := 1; ; attempt++ {
		idx, err := spawnOnce(env, &c, n, path)
		if err == nil {
			idx.Logging = log
			return idx, nil
		}

		if errors.Is(err, probe.ErrProcessDied) && attempt < c.Attempts {
			log.S().Warnw("indexer exited early, respawning with fresh ports",
				"attempt", attempt, "remaining", c.Attempts-attempt, "err", err)
			continue
		}
		if errors.Is(err, probe.ErrProcessDied) {
			return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrEarlyExit, err, attempt)
		}
		return nil, err
	}
}

// leaveIBD nudges the node out of initial block download. The indexer idles
// until the node reports IBD over, and a node that has never seen a block
// stays in IBD forever; one generated block breaks the deadlock.
func leaveIBD(n *node.Node) error {
	ctx := context.Background()
	info, err := n.ChainInfo(ctx)
	if err != nil {
		return fmt.Errorf("node not queryable before indexer start: %w", err)
	}
	if !info.InitialBlockDownload {
		return nil
	}
	_, err = n.Generate(ctx, 1)
	return err
}

// endpoints collects the addresses and paths the synthesized argument list
// embeds.
type endpoints struct {
	dbDir      string
	cookieFile string
	daemonRPC  string
	daemonP2P  string
	electrum   string
	monitoring string
	esplora    string
}

// buildArgs synthesizes the full daemon argument list. The flags owned here
// are exactly the ones callers are forbidden to pass through Conf.Args.
func buildArgs(c *Conf, ep endpoints) []string {
	args := append([]string{}, c.Args...)
	args = append(args,
		"--db-dir", ep.dbDir,
		"--network", c.Network,
		"--cookie-file", ep.cookieFile,
		"--daemon-rpc-addr", ep.daemonRPC,
	)
	if c.Version.JSONRPCImport {
		args = append(args, "--jsonrpc-import")
	} else {
		args = append(args, "--daemon-p2p-addr", ep.daemonP2P)
	}
	args = append(args,
		"--electrum-rpc-addr", ep.electrum,
		// no flag exists to disable monitoring; park it on its own port.
		"--monitoring-addr", ep.monitoring,
	)
	if ep.esplora != "" {
		args = append(args, "--http-addr", ep.esplora)
	}
	return args
}

func spawnOnce(env *config.EnvConfig, c *Conf, n *node.Node, path string) (*Indexer, error) {
	wd, err := node.ResolveWorkDir(c.TmpDir, c.StaticDir, env, "electrs")
	if err != nil {
		return nil, err
	}

	portCount := 2 // electrum + monitoring
	if c.HTTPEnabled {
		portCount = 3
	}
	allocated, err := c.Allocator.Allocate(portCount)
	if err != nil {
		wd.Discard()
		return nil, err
	}

	electrumURL := fmt.Sprintf("127.0.0.1:%d", allocated[0])
	monitoringURL := fmt.Sprintf("127.0.0.1:%d", allocated[1])
	esploraURL := ""
	if c.HTTPEnabled {
		esploraURL = fmt.Sprintf("127.0.0.1:%d", allocated[2])
	}

	args := buildArgs(c, endpoints{
		dbDir:      wd.Path(),
		cookieFile: n.CookieFile(),
		daemonRPC:  n.RPCSocket(),
		daemonP2P:  n.P2PSocket(),
		electrum:   electrumURL,
		monitoring: monitoringURL,
		esplora:    esploraURL,
	})

	output := process.OutputDiscard
	if c.ViewStderr {
		output = process.OutputStream
	}

	ownedDir := wd.Path()
	if wd.Persistent() {
		ownedDir = ""
	}

	handle, err := process.Spawn(process.SpawnOpts{
		Path:          path,
		Args:          args,
		Label:         "electrs",
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

	ctx, cancel := context.WithTimeout(context.Background(), env.Timing.ReadyTimeout.Duration)
	defer cancel()

	// readiness means a completed protocol handshake, not just an accepted
	// connection.
	var client *electrum.Client
	ready := func() (bool, string, error) {
		conn, err := electrum.Dial(ctx, electrumURL)
		if err != nil {
			return false, "electrum endpoint not accepting connections", err
		}
		if _, _, err := conn.ServerVersion(); err != nil {
			_ = conn.Close()
			return false, "electrum handshake failed", err
		}
		client = conn
		return true, "electrum endpoint ready", nil
	}

	if err := probe.WaitReady(ctx, handle, env.Timing.ReadyInterval.Duration, ready); err != nil {
		_ = handle.Teardown()
		return nil, err
	}

	return &Indexer{
		Client:      client,
		ElectrumURL: electrumURL,
		EsploraURL:  esploraURL,
		env:         env,
		conf:        *c,
		nd:          n,
		handle:      handle,
	}, nil
}

// Teardown stops the indexer and reclaims its resources. Idempotent.
func (i *Indexer) Teardown() error {
	_ = i.Client.Close()
	return i.handle.Teardown()
}

// WorkDir returns the indexer's working (db) directory.
func (i *Indexer) WorkDir() string { return i.handle.WorkDir() }

// Pid returns the daemon's process id.
func (i *Indexer) Pid() int { return i.handle.Pid() }
