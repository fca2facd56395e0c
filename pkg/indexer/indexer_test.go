package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regtestd/regtestd/pkg/electrum"
	"github.com/regtestd/regtestd/pkg/exe"
)

func TestBuildArgsJSONRPCImport(t *testing.T) {
	c := DefaultConf()
	c.withDefaults()

	args := buildArgs(&c, endpoints{
		dbDir:      "/tmp/db",
		cookieFile: "/tmp/data/dev/.cookie",
		daemonRPC:  "127.0.0.1:18443",
		electrum:   "127.0.0.1:50001",
		monitoring: "127.0.0.1:24224",
	})

	assert.Contains(t, args, "-vvv")
	assert.Contains(t, args, "--jsonrpc-import")
	assert.NotContains(t, args, "--daemon-p2p-addr")
	assert.NotContains(t, args, "--http-addr")

	for flag, value := range map[string]string{
		"--db-dir":            "/tmp/db",
		"--network":           "dev",
		"--cookie-file":       "/tmp/data/dev/.cookie",
		"--daemon-rpc-addr":   "127.0.0.1:18443",
		"--electrum-rpc-addr": "127.0.0.1:50001",
		"--monitoring-addr":   "127.0.0.1:24224",
	} {
		assertFlagValue(t, args, flag, value)
	}
}

func TestBuildArgsP2PAndHTTP(t *testing.T) {
	c := DefaultConf()
	c.Version = exe.VersionSpec{Daemon: exe.DaemonIndexer, Version: "v0.4.0"}
	c.HTTPEnabled = true
	c.withDefaults()

	args := buildArgs(&c, endpoints{
		daemonP2P: "127.0.0.1:18444",
		esplora:   "127.0.0.1:3000",
	})

	assert.NotContains(t, args, "--jsonrpc-import")
	assertFlagValue(t, args, "--daemon-p2p-addr", "127.0.0.1:18444")
	assertFlagValue(t, args, "--http-addr", "127.0.0.1:3000")
}

func assertFlagValue(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i, a := range args {
		if a == flag {
			require.Less(t, i+1, len(args), "%s has no value", flag)
			assert.Equal(t, value, args[i+1], "wrong value for %s", flag)
			return
		}
	}
	t.Errorf("flag %s not found in %v", flag, args)
}

func TestConfDefaults(t *testing.T) {
	var c Conf
	c.withDefaults()

	assert.Equal(t, "dev", c.Network)
	assert.Equal(t, 3, c.Attempts)
	assert.Equal(t, exe.DaemonIndexer, c.Version.Daemon)
	assert.NotNil(t, c.Allocator)
}

// electrumStub answers blockchain.block.header only at or above the given
// height, simulating an indexer catching up.
func electrumStub(t *testing.T, indexedHeight int) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req struct {
				ID     uint64        `json:"id"`
				Method string        `json:"method"`
				Params []interface{} `json:"params"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			reply := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if req.Method == "blockchain.block.header" && int(req.Params[0].(float64)) <= indexedHeight {
				reply["result"] = "00aabb"
			} else {
				reply["error"] = map[string]interface{}{"code": 1, "message": "missing header"}
			}
			raw, _ := json.Marshal(reply)
			if _, err := conn.Write(append(raw, '\n')); err != nil {
				return
			}
		}
	}()

	return l.Addr().String()
}

func TestWaitHeight(t *testing.T) {
	addr := electrumStub(t, 100)

	client, err := electrum.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer client.Close()

	idx := &Indexer{Client: client, ElectrumURL: addr}

	require.NoError(t, idx.WaitHeight(context.Background(), 100))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = idx.WaitHeight(ctx, 101)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
