/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown/Errors 等生命周期方法。
    agentcmd serve 为 API 与 metrics 各创建一个 Manager。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头与优雅关闭超时。

# 信号处理

SignalContext 在收到 SIGINT/SIGTERM 时取消上下文，
Wait 阻塞直到上下文取消或任一服务器异常退出。
*/
package server
