package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/xid"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/exe"
	"github.com/regtestd/regtestd/pkg/ports"
)

// ErrBothDirsSpecified is returned when a Conf asks for both a temporary and
// a persistent working directory.
var ErrBothDirsSpecified = errors.New("tmpdir and staticdir cannot both be set")

// EnvTempDirRoot overrides the root under which temporary workdirs are
// created.
const EnvTempDirRoot = "TEMPDIR_ROOT"

// Conf describes one node fixture. The zero value plus DefaultConf covers
// the common case; fields mirror what tests historically needed to tweak.
type Conf struct {
	// Args are extra command line arguments appended verbatim. Keys the
	// synthesizer owns (datadir, ports, network selection, cookie) must not
	// appear here.
	Args []string

	// ViewStdout streams the daemon's output instead of discarding it.
	ViewStdout bool

	// Network selects the chain mode. Fixtures default to the private dev
	// network.
	Network string

	// TmpDir optionally roots the temporary workdir. Mutually exclusive
	// with StaticDir.
	TmpDir string

	// StaticDir makes the workdir persistent across runs: it is created if
	// missing and never deleted on teardown.
	StaticDir string

	// SeedDir optionally names a datadir template copied into the fresh
	// workdir before first start (e.g. a pre-mined chain).
	SeedDir string

	// P2P opens a peer-to-peer port in addition to RPC.
	P2P bool

	// Attempts is how many times to respawn with fresh ports when the
	// daemon exits before readiness (ephemeral ports are inherently racy).
	Attempts int

	// Version pins the daemon release for download resolution.
	Version exe.VersionSpec

	// ExePath explicitly overrides binary resolution.
	ExePath string

	// Allocator is the port allocator to draw endpoints from; nil means
	// the process-wide default.
	Allocator *ports.Allocator
}

// DefaultConf returns the configuration used by New.
func DefaultConf() Conf {
	return Conf{
		Network:  DefaultNetwork,
		Attempts: 3,
		Version:  exe.NodeV0_6_1,
	}
}

func (c *Conf) withDefaults() {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.Version.Daemon == "" {
		c.Version = exe.NodeV0_6_1
	}
	if c.Allocator == nil {
		c.Allocator = ports.Default
	}
}

// WorkDir is the resolved working directory of one fixture, either temporary
// (deleted on teardown) or persistent.
type WorkDir struct {
	path       string
	persistent bool
}

func (w WorkDir) Path() string { return w.path }

func (w WorkDir) Persistent() bool { return w.persistent }

// Discard removes a temporary workdir that never made it to a spawned
// process. Persistent dirs are left alone.
func (w WorkDir) Discard() {
	if !w.persistent && w.path != "" {
		_ = os.RemoveAll(w.path)
	}
}

// ResolveWorkDir creates an exclusively-owned working directory. tmpDir and
// staticDir are mutually exclusive; with neither set, a fresh directory is
// created under TEMPDIR_ROOT or the configured work root. Both fixture kinds
// share this logic.
func ResolveWorkDir(tmpDir, staticDir string, env *config.EnvConfig, prefix string) (WorkDir, error) {
	switch {
	case tmpDir != "" && staticDir != "":
		return WorkDir{}, ErrBothDirsSpecified

	case staticDir != "":
		if err := os.MkdirAll(staticDir, 0755); err != nil {
			return WorkDir{}, err
		}
		return WorkDir{path: staticDir, persistent: true}, nil

	default:
		root := tmpDir
		if root == "" {
			root = os.Getenv(EnvTempDirRoot)
		}
		if root == "" {
			root = env.Dirs().Work()
		}
		path := filepath.Join(root, prefix+"-"+xid.New().String())
		if err := os.MkdirAll(path, 0755); err != nil {
			return WorkDir{}, err
		}
		return WorkDir{path: path}, nil
	}
}

// synthConfig holds everything the config synthesizer resolved for one spawn
// attempt. Immutable once written; the daemon reads the file only at
// startup.
type synthConfig struct {
	workDir    WorkDir
	dataDir    string
	confFile   string
	cookieFile string
	rpcPort    int
	p2pPort    int // 0 when p2p is disabled
}

// RPCSocket returns the host:port of the JSON-RPC endpoint.
func (s synthConfig) RPCSocket() string {
	return fmt.Sprintf("127.0.0.1:%d", s.rpcPort)
}

// P2PSocket returns the host:port of the p2p endpoint, or "" if disabled.
func (s synthConfig) P2PSocket() string {
	if s.p2pPort == 0 {
		return ""
	}
	return fmt.Sprintf("127.0.0.1:%d", s.p2pPort)
}

// synthesize builds the datadir, genesis file and daemon config file for one
// spawn attempt. allocated holds rpc and optionally p2p ports, in that order.
func synthesize(c *Conf, wd WorkDir, allocated []int) (synthConfig, error) {
	s := synthConfig{
		workDir: wd,
		dataDir: filepath.Join(wd.path, "data"),
		rpcPort: allocated[0],
	}
	if len(allocated) > 1 {
		s.p2pPort = allocated[1]
	}

	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return s, err
	}

	if c.Network == DefaultNetwork {
		genesis := filepath.Join(s.dataDir, GenesisFileName)
		if err := writeFileIfAbsent(genesis, genesisBlockHex+"\n"); err != nil {
			return s, err
		}
	}

	values := map[string]string{
		"datadir":    s.dataDir,
		"server":     "1",
		"txindex":    "1",
		"listen":     "0",
		"rpcbind":    "127.0.0.1",
		"rpcallowip": "127.0.0.1",
		"rpcport":    fmt.Sprintf("%d", s.rpcPort),
		"debug":      "1",
	}
	if c.Network == DefaultNetwork {
		values["dev"] = "1"
		values["networkid"] = fmt.Sprintf("%d", NetworkID)
	}
	if s.p2pPort != 0 {
		values["listen"] = "1"
		values["bind"] = "127.0.0.1"
		values["port"] = fmt.Sprintf("%d", s.p2pPort)
	}

	s.confFile = filepath.Join(wd.path, "tapyrus.conf")
	if err := writeConfFile(s.confFile, values); err != nil {
		return s, err
	}

	s.cookieFile = filepath.Join(s.dataDir, networkSubdir(c.Network), ".cookie")
	return s, nil
}

// writeConfFile renders the daemon's key=value config format. Keys are
// sorted so synthesized files are reproducible.
func writeConfFile(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, values[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func writeFileIfAbsent(path, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(contents), 0644)
}

// networkSubdir is the datadir subdirectory the daemon nests chain state
// (and the RPC cookie) under for non-main networks.
func networkSubdir(network string) string {
	if network == "main" {
		return ""
	}
	return network
}
