package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCookie(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".cookie")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestCallAuthenticatesWithCookie(t *testing.T) {
	cookie := writeCookie(t, "__cookie__:s3cret\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "__cookie__", user)
		assert.Equal(t, "s3cret", pass)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getblockcount", req["method"])

		_, _ = w.Write([]byte(`{"result": 42, "error": null, "id": "regtestd"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, cookie)

	var count int
	require.NoError(t, c.Call(context.Background(), "getblockcount", nil, &count))
	assert.Equal(t, 42, count)
}

func TestCallSurfacesRPCError(t *testing.T) {
	cookie := writeCookie(t, "__cookie__:s3cret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": null, "error": {"code": -28, "message": "Loading block index..."}, "id": "regtestd"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, cookie)

	err := c.Call(context.Background(), "getblockchaininfo", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -28, rpcErr.Code)
}

func TestCallFailsWithoutCookie(t *testing.T) {
	c := New("http://127.0.0.1:1", filepath.Join(t.TempDir(), "absent"))
	err := c.Call(context.Background(), "ping", nil, nil)
	assert.Error(t, err)
}

func TestCallMalformedCookie(t *testing.T) {
	cookie := writeCookie(t, "nocolonhere")
	c := New("http://127.0.0.1:1", cookie)
	err := c.Call(context.Background(), "ping", nil, nil)
	assert.ErrorContains(t, err, "malformed")
}
