package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/agentconfig"
	"github.com/BaSui01/agentcmd/types"
)

// AgentHandler 管理 agent 的命令开关
type AgentHandler struct {
	store  agentconfig.Store
	logger *zap.Logger
}

// SetCommandRequest 单条命令开关
type SetCommandRequest struct {
	Enabled bool `json:"enabled"`
}

// NewAgentHandler 创建 agent 配置处理器
func NewAgentHandler(store agentconfig.Store, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "agents")),
	}
}

// HandleList 处理 GET /api/v1/agents
func (h *AgentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.List(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, names)
}

// HandleGetCommands 处理 GET /api/v1/agents/{agent}/commands
func (h *AgentHandler) HandleGetCommands(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context(), r.PathValue("agent"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, cfg)
}

// HandlePutCommands 处理 PUT /api/v1/agents/{agent}/commands，整体替换配置
func (h *AgentHandler) HandlePutCommands(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var cfg types.CommandConfig
	if err := DecodeJSONBody(w, r, &cfg, h.logger); err != nil {
		return
	}

	agent := r.PathValue("agent")
	if err := h.store.Put(r.Context(), agent, cfg); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	h.logger.Info("agent commands replaced", zap.String("agent", agent), zap.Int("commands", len(cfg)))

	stored, err := h.store.Get(r.Context(), agent)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, stored)
}

// HandleSetCommand 处理 PUT /api/v1/agents/{agent}/commands/{command}
func (h *AgentHandler) HandleSetCommand(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req SetCommandRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	agent, command := r.PathValue("agent"), r.PathValue("command")
	if err := h.store.SetCommand(r.Context(), agent, command, req.Enabled); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"agent": agent, "command": command, "enabled": req.Enabled})
}

// HandleDelete 处理 DELETE /api/v1/agents/{agent}
func (h *AgentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("agent")); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
