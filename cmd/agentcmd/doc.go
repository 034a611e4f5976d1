/*
Package main 提供 agentcmd 命令行与服务端程序入口。

# 概述

cmd/agentcmd 基于 cobra 组织子命令：serve 启动 HTTP API 与指标服务，
commands 直接列出或执行已加载的扩展命令，prompts 管理提示词模板。
所有子命令共用 YAML 配置加载与 zap 日志初始化。

# 核心类型

  - Server: 组装注册表、调度器与存储，管理 API 与 Metrics 双端口及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler
  - components: serve 与 CLI 子命令共用的注册表、调度器、Agent 存储与提示词存储

# 主要能力

  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key）
  - 扩展目录监听：extensions.watch 开启时脚本变更后自动重载注册表
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听，停止目录监听，关闭 HTTP 与 Metrics，刷新遥测，关闭存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
