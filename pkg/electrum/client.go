// Package electrum is a minimal Electrum wire-protocol client: JSON-RPC 2.0,
// one request per newline-terminated frame, over a plain TCP socket. It
// covers only the calls the fixtures and their tests need.
package electrum

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

const callTimeout = 10 * time.Second

// ClientVersion is the client string announced during server.version.
const ClientVersion = "regtestd 0.1"

// ProtocolVersion is the Electrum protocol revision negotiated on connect.
const ProtocolVersion = "1.4"

// Error is a structured error returned by the server.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("electrum error %d: %s", e.Code, e.Message)
}

// Client is a synchronous Electrum client. Calls are serialized on the
// single connection; fixtures poll with it from one goroutine at a time, and
// the mutex keeps the occasional concurrent helper honest.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	next uint64
}

// Dial connects to an Electrum endpoint.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close tears down the connection. The client is unusable afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     uint64          `json:"id"`
}

func (c *Client) call(method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	frame, err := json.Marshal(request{JSONRPC: "2.0", ID: c.next, Method: method, Params: params})
	if err != nil {
		return err
	}
	frame = append(frame, '\n')

	if err := c.conn.SetDeadline(time.Now().Add(callTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	// notifications (e.g. header updates) may be interleaved; skip frames
	// that do not answer our request id.
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		var decoded response
		if err := json.Unmarshal(line, &decoded); err != nil {
			return fmt.Errorf("%s: malformed frame: %w", method, err)
		}
		if decoded.ID != c.next {
			continue
		}
		if decoded.Error != nil {
			return decoded.Error
		}
		if result != nil {
			return json.Unmarshal(decoded.Result, result)
		}
		return nil
	}
}

// ServerVersion performs the version/feature handshake; fixtures use it as
// the canonical liveness query.
func (c *Client) ServerVersion() (server string, protocol string, err error) {
	var out []string
	if err = c.call("server.version", []interface{}{ClientVersion, ProtocolVersion}, &out); err != nil {
		return "", "", err
	}
	if len(out) != 2 {
		return "", "", fmt.Errorf("server.version: unexpected reply of %d elements", len(out))
	}
	return out[0], out[1], nil
}

// Ping checks the connection is alive.
func (c *Client) Ping() error {
	return c.call("server.ping", nil, nil)
}

// HeaderStatus is the tip snapshot returned by blockchain.headers.subscribe.
type HeaderStatus struct {
	Height int    `json:"height"`
	Hex    string `json:"hex"`
}

// HeadersSubscribe returns the current chain tip as seen by the indexer.
func (c *Client) HeadersSubscribe() (*HeaderStatus, error) {
	var out HeaderStatus
	if err := c.call("blockchain.headers.subscribe", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockHeaderRaw fetches the raw header at height; erroring until the
// indexer has caught up to it.
func (c *Client) BlockHeaderRaw(height int) (string, error) {
	var out string
	if err := c.call("blockchain.block.header", []interface{}{height}, &out); err != nil {
		return "", err
	}
	return out, nil
}

// TransactionGet fetches a raw transaction by id.
func (c *Client) TransactionGet(txid string) (string, error) {
	var out string
	if err := c.call("blockchain.transaction.get", []interface{}{txid}, &out); err != nil {
		return "", err
	}
	return out, nil
}

// HistoryItem is one confirmed or mempool entry in a script's history.
type HistoryItem struct {
	TxHash string `json:"tx_hash"`
	Height int    `json:"height"`
}

// ScriptHashHistory lists the history of a script hash (sha256 of the
// scriptPubKey, reversed, hex-encoded, per the Electrum protocol).
func (c *Client) ScriptHashHistory(scripthash string) ([]HistoryItem, error) {
	var out []HistoryItem
	if err := c.call("blockchain.scripthash.get_history", []interface{}{scripthash}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
