package node

// Parameters of the private dev network the fixtures run on. The network is
// fully self-contained: the genesis block embeds the aggregate public key of
// a single test signer, and NewBlocks are authorized with the matching WIF
// private key instead of proof-of-work.

const (
	// DefaultNetwork is the network mode fixtures run under.
	DefaultNetwork = "dev"

	// NetworkID identifies the private dev network.
	NetworkID = 1905960821

	// AggregatePublicKey is the block-signing public key baked into the
	// genesis block.
	AggregatePublicKey = "03af80b90d25145da28c583359beb47b21796b2fe1a23c1511e443e7a64dfdb27d"

	// SignerPrivateKey is the WIF private key matching AggregatePublicKey.
	// Test-only material; it authorizes block generation on the dev network
	// and never leaves the fixture.
	SignerPrivateKey = "cUJN5RVzYWFoeY8rUztd47jzXCu1p57Ay8V7pqCzsBD3PEXN7Dd4"
)

// genesisBlockHex is the literal serialized genesis block for the dev
// network, written to the datadir before first start. The daemon refuses to
// boot a dev-mode chain without it.
const genesisBlockHex = "0100000000000000000000000000000000000000000000000000000000000000" +
	"000000002b5331139c6bc8646bb4e5737c51378133f70b9712b75548cb3c05f9188670e7" +
	"440d295e7300c5022103af80b90d25145da28c583359beb47b21796b2fe1a23c1511e443" +
	"e7a64dfdb27d40e05f064662a6b9acf65ae416379d82e11a9b78cdeb3a316d1057cd2780" +
	"e3727f70a61f901d10acbe349cd11e04aa6b4351e782fb2b200643fd1d760eacfcaaab01" +
	"0100000001000000000000000000000000000000000000000000000000000000000000" +
	"0000ffffffff0100f2052a010000001976a914834e0737cdb9008db614cd95ec98824e95" +
	"2e3dc588ac00000000"

// GenesisFileName is the filename the daemon expects the genesis block
// under, relative to the datadir.
const GenesisFileName = "genesis.dat"
