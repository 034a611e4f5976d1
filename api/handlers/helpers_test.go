package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/types"
)

// =============================================================================
// 🧪 测试扩展
// =============================================================================

type testExtension struct {
	name     string
	commands []extension.Command
}

func (e *testExtension) Name() string                  { return e.name }
func (e *testExtension) Commands() []extension.Command { return e.commands }

type greetArgs struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting" default:"hello"`
}

func greeterFactory(extension.Settings) (extension.Extension, error) {
	return &testExtension{
		name: "greeter",
		commands: []extension.Command{
			extension.Typed("greet", "greet", func(_ context.Context, a greetArgs) (string, error) {
				return a.Greeting + " " + a.Name, nil
			}),
			{
				FriendlyName: "fail",
				FunctionName: "fail",
				Handler: func(context.Context, map[string]any) (string, error) {
					return "", errors.New("boom")
				},
			},
		},
	}, nil
}

// newTestRegistry 返回已加载 greeter 扩展的注册表
func newTestRegistry(t *testing.T) *extension.Registry {
	t.Helper()
	catalog := extension.NewCatalog()
	require.NoError(t, catalog.Add("greeter", greeterFactory))

	loader := extension.NewLoader(extension.WithCatalog(catalog), extension.WithDir(t.TempDir()))
	registry := extension.NewRegistry(loader)
	require.NoError(t, registry.Reload(context.Background()))
	return registry
}

// failingScanner 每次扫描都失败
type failingScanner struct{}

func (failingScanner) Scan(context.Context) (*extension.Snapshot, error) {
	return nil, errors.New("disk on fire")
}

// =============================================================================
// 🧪 HTTP 辅助函数
// =============================================================================

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// decodeData 解码响应信封并将 data 字段解到 dst
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}

func newMux(register func(mux *http.ServeMux)) *http.ServeMux {
	mux := http.NewServeMux()
	register(mux)
	return mux
}

var testLogger = zap.NewNop()

// stubExecutor 返回固定结果
type stubExecutor struct {
	result types.Result
	calls  int
}

func (s *stubExecutor) Execute(_ context.Context, name string, _ map[string]any) types.Result {
	s.calls++
	r := s.result
	r.Command = name
	r.Duration = time.Millisecond
	return r
}
