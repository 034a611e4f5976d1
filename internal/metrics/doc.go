/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP 请求、
命令调度与扩展注册表三个维度。

# 核心类型

  - Collector：指标收集器，实现 extension.Observer，
    可同时挂载到 Registry 与 Dispatcher。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 调度指标：按 command/status 统计调度次数与耗时。
  - 注册表指标：重载次数与耗时，当前快照的命令数、加载失败数与代号。

指标注册到调用方传入的 prometheus.Registerer，测试中可使用独立注册表。
*/
package metrics
