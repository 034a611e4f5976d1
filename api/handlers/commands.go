package handlers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/agentconfig"
	"github.com/BaSui01/agentcmd/internal/ctxkeys"
	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/types"
)

// =============================================================================
// ⚙️ Command Handler
// =============================================================================

// CommandCatalog 提供已加载命令的只读视图，由 *extension.Registry 实现
type CommandCatalog interface {
	Snapshot() *extension.Snapshot
	FilterEnabled(cfg types.CommandConfig) []types.AvailableCommand
}

// CommandExecutor 按友好名执行命令，由 *extension.Dispatcher 实现
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) types.Result
}

// CommandHandler 命令查询与执行处理器
type CommandHandler struct {
	catalog  CommandCatalog
	executor CommandExecutor
	agents   agentconfig.Store
	logger   *zap.Logger
}

// CommandInfo 单个命令的 API 表示
type CommandInfo struct {
	FriendlyName string            `json:"friendly_name"`
	Name         string            `json:"name"`
	Extension    string            `json:"extension"`
	Source       string            `json:"source,omitempty"`
	Args         types.ParamSchema `json:"args"`
}

// ExecuteRequest 命令执行请求
type ExecuteRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
	// Agent 非空时仅允许执行该 agent 已启用的命令
	Agent string `json:"agent,omitempty"`
}

// ExecuteResponse 命令执行结果
type ExecuteResponse struct {
	CallID   string     `json:"call_id"`
	Command  string     `json:"command"`
	Output   string     `json:"output"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Duration string     `json:"duration"`
}

// NewCommandHandler 创建命令处理器，agents 为空时忽略请求中的 agent 字段
func NewCommandHandler(catalog CommandCatalog, executor CommandExecutor, agents agentconfig.Store, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		catalog:  catalog,
		executor: executor,
		agents:   agents,
		logger:   logger.With(zap.String("handler", "commands")),
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleList 处理 GET /api/v1/commands
//
// 带 agent 查询参数时返回该 agent 可用的命令，否则返回全部已加载命令。
func (h *CommandHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if agent := r.URL.Query().Get("agent"); agent != "" {
		if h.agents == nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent filtering is not configured", h.logger)
			return
		}
		available, err := agentconfig.AvailableCommands(r.Context(), h.agents, h.catalog, agent)
		if err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		WriteSuccess(w, available)
		return
	}

	snap := h.catalog.Snapshot()
	out := make([]CommandInfo, 0, len(snap.Definitions))
	for _, def := range snap.Definitions {
		out = append(out, toCommandInfo(snap, def))
	}
	WriteSuccess(w, out)
}

// HandleGet 处理 GET /api/v1/commands/{name}
func (h *CommandHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap := h.catalog.Snapshot()
	def, ok := snap.Find(name)
	if !ok {
		WriteError(w, commandNotFound(name), h.logger)
		return
	}
	WriteSuccess(w, toCommandInfo(snap, def))
}

// HandleExecute 处理 POST /api/v1/commands/execute
func (h *CommandHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Command == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "command is required", h.logger)
		return
	}

	if req.Agent != "" {
		if h.agents == nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent filtering is not configured", h.logger)
			return
		}
		cfg, err := h.agents.Get(r.Context(), req.Agent)
		if err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		if !cfg.Enabled(req.Command) {
			WriteError(w, types.NewError(types.ErrCommandDisabled,
				fmt.Sprintf("command %s is not enabled for agent %s", req.Command, req.Agent)), h.logger)
			return
		}
	}

	ctx := r.Context()
	if req.Agent != "" {
		ctx = ctxkeys.WithAgent(ctx, req.Agent)
	}
	result := h.executor.Execute(ctx, req.Command, req.Args)
	if !result.Found {
		WriteError(w, commandNotFound(req.Command), h.logger)
		return
	}
	if result.Err != nil && result.Err.Code == types.ErrRateLimited {
		WriteError(w, result.Err, h.logger)
		return
	}

	resp := ExecuteResponse{
		CallID:   result.CallID,
		Command:  result.Command,
		Output:   result.Output,
		Duration: result.Duration.String(),
	}
	// 命令已执行，失败信息随输出一起返回
	if result.Err != nil {
		resp.Error = &ErrorInfo{
			Code:      string(result.Err.Code),
			Message:   result.Err.Message,
			Extension: result.Err.Extension,
			Retryable: result.Err.Retryable,
		}
	}
	WriteSuccess(w, resp)
}

func toCommandInfo(snap *extension.Snapshot, def types.CommandDefinition) CommandInfo {
	info := CommandInfo{
		FriendlyName: def.FriendlyName,
		Name:         def.FunctionName,
		Extension:    def.Extension,
		Args:         def.Params,
	}
	if m, ok := snap.Module(def.Extension); ok {
		info.Source = m.Source
	}
	return info
}

func commandNotFound(name string) *types.Error {
	return types.NewError(types.ErrCommandNotFound, fmt.Sprintf("command %s not found", name)).
		WithHTTPStatus(http.StatusNotFound)
}
