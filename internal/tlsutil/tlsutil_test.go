package tlsutil

import (
	"crypto/tls"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	secure := map[uint16]bool{}
	for _, cs := range tls.CipherSuites() {
		secure[cs.ID] = true
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, secure[cs], "cipher suite %s is not in the secure list", tls.CipherSuiteName(cs))
	}
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "agentcmd/1.4.0 (extension web_search)", UserAgent("web_search", "1.4.0"))
	assert.Equal(t, "agentcmd/dev (extension web_search)", UserAgent("web_search", ""))
	assert.Equal(t, "agentcmd/dev", UserAgent("", ""))
}

// writeServerCA stores the test server's certificate as a PEM bundle.
func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNewExtensionClient(t *testing.T) {
	var gotUA string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Run("untrusted certificate rejected", func(t *testing.T) {
		client, err := NewExtensionClient(ClientOptions{Extension: "web_search", Timeout: time.Second})
		require.NoError(t, err)
		_, err = client.Get(srv.URL)
		require.Error(t, err)
	})

	t.Run("extension CA trusted", func(t *testing.T) {
		client, err := NewExtensionClient(ClientOptions{
			Extension: "web_search",
			Version:   "1.4.0",
			Timeout:   time.Second,
			CAFile:    writeServerCA(t, srv),
		})
		require.NoError(t, err)
		assert.Equal(t, time.Second, client.Timeout)

		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "agentcmd/1.4.0 (extension web_search)", gotUA)
	})

	t.Run("explicit user agent kept", func(t *testing.T) {
		client, err := NewExtensionClient(ClientOptions{Extension: "web_search", CAFile: writeServerCA(t, srv)})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "custom")
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "custom", gotUA)
	})
}

func TestNewExtensionClient_BadCAFile(t *testing.T) {
	_, err := NewExtensionClient(ClientOptions{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorContains(t, err, "read CA file")

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a certificate"), 0o600))
	_, err = NewExtensionClient(ClientOptions{CAFile: empty})
	assert.ErrorContains(t, err, "no PEM certificates")
}
