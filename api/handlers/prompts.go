package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/prompts"
	"github.com/BaSui01/agentcmd/types"
)

// PromptHandler 提示词模板 CRUD 处理器
type PromptHandler struct {
	store  *prompts.Store
	logger *zap.Logger
}

// PromptRequest 新增或更新提示词
type PromptRequest struct {
	Name string `json:"name,omitempty"`
	Text string `json:"text"`
}

// PromptResponse 提示词内容及占位符
type PromptResponse struct {
	Name  string   `json:"name"`
	Model string   `json:"model,omitempty"`
	Text  string   `json:"text"`
	Args  []string `json:"args"`
}

// NewPromptHandler 创建提示词处理器
func NewPromptHandler(store *prompts.Store, logger *zap.Logger) *PromptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "prompts")),
	}
}

// HandleList 处理 GET /api/v1/prompts
func (h *PromptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.List()
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, names)
}

// HandleGet 处理 GET /api/v1/prompts/{name}，可用 model 查询参数选择模型专属版本
func (h *PromptHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	model := r.URL.Query().Get("model")

	text, err := h.store.GetModelPrompt(name, model)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, PromptResponse{
		Name:  name,
		Model: model,
		Text:  text,
		Args:  prompts.PlaceholderArgs(text),
	})
}

// HandleCreate 处理 POST /api/v1/prompts，同名提示词已存在时返回 409
func (h *PromptHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req PromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name is required", h.logger)
		return
	}
	if err := h.store.Add(req.Name, req.Text); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteCreated(w, PromptResponse{Name: req.Name, Text: req.Text, Args: prompts.PlaceholderArgs(req.Text)})
}

// HandleUpdate 处理 PUT /api/v1/prompts/{name}
func (h *PromptHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req PromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	name := r.PathValue("name")
	if err := h.store.Update(name, req.Text); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, PromptResponse{Name: name, Text: req.Text, Args: prompts.PlaceholderArgs(req.Text)})
}

// HandleDelete 处理 DELETE /api/v1/prompts/{name}
func (h *PromptHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("name")); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
