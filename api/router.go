package api

import (
	"net/http"

	"github.com/BaSui01/agentcmd/api/handlers"
)

// Handlers 聚合各路由组的处理器，为 nil 的组不注册
type Handlers struct {
	Health     *handlers.HealthHandler
	Commands   *handlers.CommandHandler
	Extensions *handlers.ExtensionHandler
	Agents     *handlers.AgentHandler
	Prompts    *handlers.PromptHandler
}

// BuildInfo 版本信息，由 /version 返回
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter 注册全部 API 路由
func NewRouter(h Handlers, build BuildInfo) *http.ServeMux {
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /health", h.Health.HandleHealth)
		mux.HandleFunc("GET /healthz", h.Health.HandleHealthz)
		mux.HandleFunc("GET /ready", h.Health.HandleReady)
		mux.HandleFunc("GET /readyz", h.Health.HandleReady)
		mux.HandleFunc("GET /version", h.Health.HandleVersion(build.Version, build.BuildTime, build.GitCommit))
	}

	if h.Commands != nil {
		mux.HandleFunc("GET /api/v1/commands", h.Commands.HandleList)
		mux.HandleFunc("GET /api/v1/commands/{name}", h.Commands.HandleGet)
		mux.HandleFunc("POST /api/v1/commands/execute", h.Commands.HandleExecute)
	}

	if h.Extensions != nil {
		mux.HandleFunc("GET /api/v1/extensions", h.Extensions.HandleList)
		mux.HandleFunc("POST /api/v1/extensions/reload", h.Extensions.HandleReload)
	}

	if h.Agents != nil {
		mux.HandleFunc("GET /api/v1/agents", h.Agents.HandleList)
		mux.HandleFunc("DELETE /api/v1/agents/{agent}", h.Agents.HandleDelete)
		mux.HandleFunc("GET /api/v1/agents/{agent}/commands", h.Agents.HandleGetCommands)
		mux.HandleFunc("PUT /api/v1/agents/{agent}/commands", h.Agents.HandlePutCommands)
		mux.HandleFunc("PUT /api/v1/agents/{agent}/commands/{command}", h.Agents.HandleSetCommand)
	}

	if h.Prompts != nil {
		mux.HandleFunc("GET /api/v1/prompts", h.Prompts.HandleList)
		mux.HandleFunc("POST /api/v1/prompts", h.Prompts.HandleCreate)
		mux.HandleFunc("GET /api/v1/prompts/{name}", h.Prompts.HandleGet)
		mux.HandleFunc("PUT /api/v1/prompts/{name}", h.Prompts.HandleUpdate)
		mux.HandleFunc("DELETE /api/v1/prompts/{name}", h.Prompts.HandleDelete)
	}

	return mux
}
