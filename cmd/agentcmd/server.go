package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/api"
	"github.com/BaSui01/agentcmd/api/handlers"
	"github.com/BaSui01/agentcmd/config"
	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/internal/metrics"
	"github.com/BaSui01/agentcmd/internal/server"
	"github.com/BaSui01/agentcmd/internal/telemetry"
)

// =============================================================================
// 🖥️ 服务器结构
// =============================================================================

// Server 组装注册表、HTTP API、指标服务与目录监听
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	comps     *components
	telemetry *telemetry.Providers
	collector *metrics.Collector
	promReg   *prometheus.Registry
	watcher   *config.DirWatcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 中间件后台任务（限流清理）的生命周期
	cancel context.CancelFunc
}

// NewServer 创建服务器，不启动任何监听
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	tp, err := telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry, continuing without it", zap.Error(err))
		tp = &telemetry.Providers{}
	}
	s.telemetry = tp

	s.promReg = prometheus.NewRegistry()
	s.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("agentcmd", s.promReg, s.logger)

	observers := extension.Observers{s.collector}
	otelObserver, err := s.telemetry.Observer()
	if err != nil {
		s.logger.Warn("failed to create otel observer", zap.Error(err))
	} else {
		observers = append(observers, otelObserver)
	}

	comps, err := buildComponents(ctx, s.cfg, observers, s.logger)
	if err != nil {
		_ = s.telemetry.Shutdown(ctx)
		return err
	}
	s.comps = comps

	if err := s.startWatcher(); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	if err := s.startHTTPServer(); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	if err := s.startMetricsServer(); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	return nil
}

// startWatcher 在配置开启且目录存在时监听脚本变化并重载注册表
func (s *Server) startWatcher() error {
	dir := s.cfg.Extensions.Dir
	if !s.cfg.Extensions.Watch || dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.logger.Warn("extension directory not found, watcher disabled", zap.String("dir", dir))
		return nil
	}

	w, err := config.NewDirWatcher(dir,
		config.WithDebounceDelay(s.cfg.Extensions.WatchDebounce),
		config.WithSuffixes(extension.ScriptExt),
		config.WithWatcherLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("create extension watcher: %w", err)
	}
	w.OnChange(func(events []config.FileEvent) {
		s.logger.Info("extension directory changed, reloading", zap.Int("events", len(events)))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.comps.registry.Reload(ctx); err != nil {
			s.logger.Error("extension reload failed", zap.Error(err))
		}
	})
	if err := w.Start(context.Background()); err != nil {
		return fmt.Errorf("start extension watcher: %w", err)
	}
	s.watcher = w
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.NewExtensionsCheck(s.comps.registry, s.cfg.Extensions.FailReadyOnErrors))
	if s.comps.db != nil {
		healthHandler.RegisterCheck(s.comps.db)
	}
	if s.comps.cache != nil {
		healthHandler.RegisterCheck(handlers.NewCheckFunc("redis", s.comps.cache.Ping))
	}

	mux := api.NewRouter(api.Handlers{
		Health:     healthHandler,
		Commands:   handlers.NewCommandHandler(s.comps.registry, s.comps.dispatcher, s.comps.agents, s.logger),
		Extensions: handlers.NewExtensionHandler(s.comps.registry, s.logger),
		Agents:     handlers.NewAgentHandler(s.comps.agents, s.logger),
		Prompts:    handlers.NewPromptHandler(s.comps.prompts, s.logger),
	}, api.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit})

	mwCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(mwCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, s.logger),
	)
	if len(s.cfg.Server.APIKeys) == 0 {
		s.logger.Warn("no API keys configured, /api/ routes are unauthenticated")
	}

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager("http", handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// startMetricsServer 启动独立的 Prometheus 指标端口，端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// managers 返回已启动的服务器，供 server.Wait 使用
func (s *Server) managers() []*server.Manager {
	var ms []*server.Manager
	if s.httpManager != nil {
		ms = append(ms, s.httpManager)
	}
	if s.metricsManager != nil {
		ms = append(ms, s.metricsManager)
	}
	return ms
}

// HTTPAddr 返回 API 实际监听地址
func (s *Server) HTTPAddr() string {
	if s.httpManager == nil {
		return ""
	}
	return s.httpManager.Addr()
}

// MetricsAddr 返回指标服务实际监听地址
func (s *Server) MetricsAddr() string {
	if s.metricsManager == nil {
		return ""
	}
	return s.metricsManager.Addr()
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Shutdown 按启动的逆序关闭各组件
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("extension watcher stop error", zap.Error(err))
		}
		s.watcher = nil
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	if s.comps != nil {
		if err := s.comps.Close(); err != nil {
			s.logger.Error("component close error", zap.Error(err))
		}
		s.comps = nil
	}

	s.logger.Info("Graceful shutdown completed")
}
