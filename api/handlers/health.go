package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcmd/extension"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 存活与就绪探针。就绪检查并发执行
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks []HealthCheck
}

// HealthCheck 就绪检查项
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// DetailedCheck 可在就绪结果中附带详情的检查项
type DetailedCheck interface {
	HealthCheck
	Details() map[string]any
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // healthy, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string         `json:"status"` // pass, fail
	Message string         `json:"message,omitempty"`
	Latency string         `json:"latency,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("handler", "health")),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth 处理 /health 与 /healthz，进程存活即返回 200
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleHealthz 同 HandleHealth
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 处理 /ready：任一检查失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		if results[i].Status != "pass" {
			status.Status = "unhealthy"
		}
		status.Checks[check.Name()] = results[i]
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)

	result := CheckResult{Status: "pass", Latency: latency.String()}
	if d, ok := check.(DetailedCheck); ok {
		result.Details = d.Details()
	}
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		h.logger.Warn("readiness check failed",
			zap.String("check", check.Name()),
			zap.Duration("latency", latency),
			zap.Error(err))
	}
	return result
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 检查项
// =============================================================================

// CheckFunc 将 Ping 一类的函数适配为检查项
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc 创建函数式检查项
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// SnapshotSource 提供当前注册表快照，由 *extension.Registry 实现
type SnapshotSource interface {
	Snapshot() *extension.Snapshot
}

// ErrExtensionsNotLoaded 注册表还没有完成过一次扫描
var ErrExtensionsNotLoaded = errors.New("extensions not loaded")

// ExtensionsCheck 基于注册表快照的就绪检查。
// 未完成首次扫描时失败；strict 时存在加载失败的扩展也视为未就绪
type ExtensionsCheck struct {
	source SnapshotSource
	strict bool
}

// NewExtensionsCheck 创建扩展就绪检查
func NewExtensionsCheck(source SnapshotSource, strict bool) *ExtensionsCheck {
	return &ExtensionsCheck{source: source, strict: strict}
}

func (c *ExtensionsCheck) Name() string { return "extensions" }

func (c *ExtensionsCheck) Check(context.Context) error {
	snap := c.source.Snapshot()
	if snap.Generation == 0 {
		return ErrExtensionsNotLoaded
	}
	if c.strict && len(snap.Errors) > 0 {
		return fmt.Errorf("%d extension(s) failed to load: %s", len(snap.Errors), strings.Join(failedNames(snap), ", "))
	}
	return nil
}

// Details 报告快照代数、命令数与加载失败的扩展
func (c *ExtensionsCheck) Details() map[string]any {
	snap := c.source.Snapshot()
	details := map[string]any{
		"generation": snap.Generation,
		"extensions": len(snap.Modules),
		"commands":   len(snap.Definitions),
	}
	if failed := failedNames(snap); len(failed) > 0 {
		details["failed"] = failed
	}
	return details
}

func failedNames(snap *extension.Snapshot) []string {
	names := make([]string, 0, len(snap.Errors))
	for _, e := range snap.Errors {
		names = append(names, e.Extension)
	}
	return names
}
