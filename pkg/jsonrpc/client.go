// Package jsonrpc is a minimal bitcoind-style JSON-RPC client, just enough
// surface for fixtures to verify readiness and drive test scenarios. It is a
// pass-through to the daemon's RPC interface, not an SDK.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// RPCError is a structured error returned by the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client talks JSON-RPC 1.0 over HTTP with cookie-file authentication. The
// cookie is re-read per call; the daemon writes it only after startup, so
// caching it would race with readiness polling.
type Client struct {
	endpoint   string
	cookiePath string
	http       *http.Client
}

func New(endpoint, cookiePath string) *Client {
	return &Client{
		endpoint:   endpoint,
		cookiePath: cookiePath,
		http:       &http.Client{},
	}
}

// Endpoint returns the HTTP endpoint this client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     string          `json:"id"`
}

// Call issues a single RPC and decodes its result into result when non-nil.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{JSONRPC: "1.0", ID: "regtestd", Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	user, pass, err := c.credentials()
	if err != nil {
		return err
	}
	req.SetBasicAuth(user, pass)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: malformed rpc response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result != nil {
		return json.Unmarshal(decoded.Result, result)
	}
	return nil
}

// credentials parses the user:password cookie file the daemon writes on
// startup.
func (c *Client) credentials() (string, string, error) {
	raw, err := os.ReadFile(c.cookiePath)
	if err != nil {
		return "", "", fmt.Errorf("rpc cookie not readable: %w", err)
	}
	parts := strings.SplitN(strings.TrimSpace(string(raw)), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("rpc cookie at %s is malformed", c.cookiePath)
	}
	return parts[0], parts[1], nil
}
