package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/types"
)

// Reloader 重新扫描扩展并替换快照，由 *extension.Registry 实现
type Reloader interface {
	Reload(ctx context.Context) error
	Snapshot() *extension.Snapshot
}

// ExtensionHandler 扩展状态与热重载处理器
type ExtensionHandler struct {
	registry Reloader
	logger   *zap.Logger
}

// ExtensionInfo 已加载扩展
type ExtensionInfo struct {
	Name     string            `json:"name"`
	Source   string            `json:"source"`
	Path     string            `json:"path,omitempty"`
	Commands []string          `json:"commands"`
	Settings types.ParamSchema `json:"settings,omitempty"`
}

// LoadErrorInfo 加载失败的扩展
type LoadErrorInfo struct {
	Extension string `json:"extension"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
}

// ExtensionsResponse 当前快照概况
type ExtensionsResponse struct {
	Generation uint64          `json:"generation"`
	LoadedAt   time.Time       `json:"loaded_at"`
	Commands   int             `json:"commands"`
	Extensions []ExtensionInfo `json:"extensions"`
	Errors     []LoadErrorInfo `json:"errors,omitempty"`
}

// NewExtensionHandler 创建扩展处理器
func NewExtensionHandler(registry Reloader, logger *zap.Logger) *ExtensionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtensionHandler{
		registry: registry,
		logger:   logger.With(zap.String("handler", "extensions")),
	}
}

// HandleList 处理 GET /api/v1/extensions
func (h *ExtensionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, describe(h.registry.Snapshot()))
}

// HandleReload 处理 POST /api/v1/extensions/reload
func (h *ExtensionHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(r.Context()); err != nil {
		WriteError(w, types.NewError(types.ErrExtensionLoad, "extension reload failed").
			WithCause(err).
			WithRetryable(true), h.logger)
		return
	}
	snap := h.registry.Snapshot()
	h.logger.Info("extensions reloaded via API", zap.Uint64("generation", snap.Generation))
	WriteSuccess(w, describe(snap))
}

func describe(snap *extension.Snapshot) ExtensionsResponse {
	resp := ExtensionsResponse{
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt,
		Commands:   len(snap.Definitions),
		Extensions: make([]ExtensionInfo, 0, len(snap.Modules)),
	}
	for _, m := range snap.Modules {
		names := make([]string, 0, len(m.Commands))
		for _, c := range m.Commands {
			names = append(names, c.FriendlyName)
		}
		resp.Extensions = append(resp.Extensions, ExtensionInfo{
			Name:     m.Name,
			Source:   m.Source,
			Path:     m.Path,
			Commands: names,
			Settings: m.Settings,
		})
	}
	for _, e := range snap.Errors {
		resp.Errors = append(resp.Errors, LoadErrorInfo{
			Extension: e.Extension,
			Path:      e.Path,
			Message:   e.Err.Error(),
		})
	}
	return resp
}
