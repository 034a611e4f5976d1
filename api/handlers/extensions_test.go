package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/types"
)

func extensionMux(h *ExtensionHandler) *http.ServeMux {
	return newMux(func(mux *http.ServeMux) {
		mux.HandleFunc("GET /api/v1/extensions", h.HandleList)
		mux.HandleFunc("POST /api/v1/extensions/reload", h.HandleReload)
	})
}

func TestExtensionHandler_List(t *testing.T) {
	h := NewExtensionHandler(newTestRegistry(t), testLogger)

	w := doRequest(t, extensionMux(h), http.MethodGet, "/api/v1/extensions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out ExtensionsResponse
	decodeData(t, w, &out)
	assert.Equal(t, uint64(1), out.Generation)
	assert.Equal(t, 2, out.Commands)
	require.Len(t, out.Extensions, 1)
	assert.Equal(t, "greeter", out.Extensions[0].Name)
	assert.Equal(t, extension.SourceBuiltin, out.Extensions[0].Source)
	assert.Equal(t, []string{"greet", "fail"}, out.Extensions[0].Commands)
	assert.Empty(t, out.Errors)
}

func TestExtensionHandler_ReloadPicksUpScripts(t *testing.T) {
	dir := t.TempDir()
	loader := extension.NewLoader(extension.WithCatalog(extension.NewCatalog()), extension.WithDir(dir))
	registry := extension.NewRegistry(loader)
	mux := extensionMux(NewExtensionHandler(registry, testLogger))

	w := doRequest(t, mux, http.MethodPost, "/api/v1/extensions/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out ExtensionsResponse
	decodeData(t, w, &out)
	assert.Equal(t, uint64(1), out.Generation)
	assert.Zero(t, out.Commands)

	broken := filepath.Join(dir, "broken"+extension.ScriptExt)
	require.NoError(t, os.WriteFile(broken, []byte("this is not lua ("), 0o644))

	w = doRequest(t, mux, http.MethodPost, "/api/v1/extensions/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &out)
	assert.Equal(t, uint64(2), out.Generation)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "broken", out.Errors[0].Extension)
	assert.Equal(t, broken, out.Errors[0].Path)
	assert.NotEmpty(t, out.Errors[0].Message)
}

func TestExtensionHandler_ReloadFailure(t *testing.T) {
	registry := extension.NewRegistry(failingScanner{})
	mux := extensionMux(NewExtensionHandler(registry, nil))

	w := doRequest(t, mux, http.MethodPost, "/api/v1/extensions/reload", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeData(t, w, nil)
	assert.Equal(t, string(types.ErrExtensionLoad), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	// 失败后保留原快照
	assert.Zero(t, registry.Snapshot().Generation)
}
