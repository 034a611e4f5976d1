/*
Package handlers 提供 agentcmd HTTP API 的请求处理器实现。

# 核心类型

  - CommandHandler：命令列表、详情与执行，可按 agent 过滤与授权
  - ExtensionHandler：扩展快照概况与热重载
  - AgentHandler：agent 命令开关的读取与修改
  - PromptHandler：提示词模板 CRUD
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 错误处理

处理器只输出 types.Error。WriteAnyError 将其他错误归为 INTERNAL_ERROR，
未显式设置 HTTP 状态的错误码由 mapErrorCodeToHTTPStatus 映射。
命令已执行但失败时仍返回 200，失败信息放在 ExecuteResponse.Error 中。
*/
package handlers
