package electrum

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers a fixed map of method -> raw result JSON, echoing back
// the request id. An empty result means an error reply.
func fakeServer(t *testing.T, results map[string]string) string {
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
				ID     uint64 `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			result, ok := results[req.Method]
			var reply []byte
			if ok {
				reply, _ = json.Marshal(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(result),
				})
			} else {
				reply, _ = json.Marshal(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": -32601, "message": "unknown method"},
				})
			}
			reply = append(reply, '\n')
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}()

	return l.Addr().String()
}

func TestServerVersionHandshake(t *testing.T) {
	addr := fakeServer(t, map[string]string{
		"server.version": `["electrs/0.5.1", "1.4"]`,
	})

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	server, protocol, err := c.ServerVersion()
	require.NoError(t, err)
	assert.Equal(t, "electrs/0.5.1", server)
	assert.Equal(t, "1.4", protocol)
}

func TestPingAndTipQueries(t *testing.T) {
	addr := fakeServer(t, map[string]string{
		"server.ping":                       `null`,
		"blockchain.headers.subscribe":      `{"height": 101, "hex": "00aabb"}`,
		"blockchain.block.header":           `"00aabb"`,
		"blockchain.transaction.get":        `"0200ffee"`,
		"blockchain.scripthash.get_history": `[{"tx_hash": "beef", "height": 7}]`,
	})

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())

	tip, err := c.HeadersSubscribe()
	require.NoError(t, err)
	assert.Equal(t, 101, tip.Height)

	raw, err := c.BlockHeaderRaw(101)
	require.NoError(t, err)
	assert.Equal(t, "00aabb", raw)

	tx, err := c.TransactionGet("beef")
	require.NoError(t, err)
	assert.Equal(t, "0200ffee", tx)

	hist, err := c.ScriptHashHistory("aa")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "beef", hist[0].TxHash)
	assert.Equal(t, 7, hist[0].Height)
}

func TestErrorReply(t *testing.T) {
	addr := fakeServer(t, map[string]string{})

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	err = c.Ping()
	var eerr *Error
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, -32601, eerr.Code)
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}
