package exe

// Daemon identifies which of the two supervised executables a VersionSpec
// refers to.
type Daemon string

const (
	// DaemonIndexer is the Electrum-protocol blockchain indexer (electrs,
	// esplora-tapyrus flavour).
	DaemonIndexer Daemon = "electrs"
	// DaemonNode is the full-node daemon the indexer syncs from.
	DaemonNode Daemon = "tapyrusd"
)

// Archive describes one downloadable release artifact. SHA256 optionally
// pins the digest inline; when empty, the locator consults the sha256
// manifest file instead (see expectedDigest).
type Archive struct {
	Name   string
	SHA256 string
}

// VersionSpec pins a daemon version: where its release archives live, the
// expected checksum per platform, and protocol capabilities that change how
// the fixture drives it. Exactly one spec is selected per fixture.
type VersionSpec struct {
	Daemon  Daemon
	Version string

	// DownloadBase is the release endpoint; joined as base/version/name.
	// Overridable via REGTESTD_DOWNLOAD_ENDPOINT.
	DownloadBase string

	// Archives maps "GOOS/GOARCH" to the release artifact for that platform.
	Archives map[string]Archive

	// JSONRPCImport is set for indexer versions that bulk-import over the
	// node's JSON-RPC instead of its p2p interface.
	JSONRPCImport bool
}

// Bin returns the executable name inside the extracted archive.
func (s VersionSpec) Bin() string {
	return string(s.Daemon)
}

// String implements fmt.Stringer; used in cache keys and log fields.
func (s VersionSpec) String() string {
	return string(s.Daemon) + "-" + s.Version
}

const (
	indexerDownloadBase = "https://github.com/chaintope/esplora-tapyrus/releases/download"
	nodeDownloadBase    = "https://github.com/chaintope/tapyrus-core/releases/download"
)

// Digests are not compiled in: upstream publishes per-release sha256
// manifests, and a stale pin would brick every download after a release is
// re-tagged. Pins come from the sha256 manifest file in the home directory,
// or from an Archive literal for callers that want a hard compile-time pin.

// IndexerV0_5_1 is the default indexer version.
var IndexerV0_5_1 = VersionSpec{
	Daemon:        DaemonIndexer,
	Version:       "v0.5.1",
	DownloadBase:  indexerDownloadBase,
	JSONRPCImport: true,
	Archives: map[string]Archive{
		"linux/amd64":  {Name: "esplora-tapyrus-v0.5.1-x86_64-unknown-linux-gnu.tar.gz"},
		"darwin/amd64": {Name: "esplora-tapyrus-v0.5.1-x86_64-apple-darwin.tar.gz"},
	},
}

// IndexerV0_5_0 is kept for plans that pin the previous release.
var IndexerV0_5_0 = VersionSpec{
	Daemon:        DaemonIndexer,
	Version:       "v0.5.0",
	DownloadBase:  indexerDownloadBase,
	JSONRPCImport: true,
	Archives: map[string]Archive{
		"linux/amd64": {Name: "esplora-tapyrus-v0.5.0-x86_64-unknown-linux-gnu.tar.gz"},
	},
}

// NodeV0_6_1 is the default full-node version.
var NodeV0_6_1 = VersionSpec{
	Daemon:       DaemonNode,
	Version:      "v0.6.1",
	DownloadBase: nodeDownloadBase,
	Archives: map[string]Archive{
		"linux/amd64":  {Name: "tapyrus-core-0.6.1-x86_64-pc-linux-gnu.tar.gz"},
		"darwin/amd64": {Name: "tapyrus-core-0.6.1-osx64.tar.gz"},
	},
}
