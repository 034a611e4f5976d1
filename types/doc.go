/*
Package types 提供 agentcmd 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 extension、prompts、
agentconfig、api 等上层模块提供统一的类型契约。

# 核心类型

  - Param / ParamSchema：有序参数声明（名称 → 默认值，nil 表示无默认值）
  - CommandDefinition：扩展声明的命令（friendly name、函数名、所属扩展、参数）
  - AvailableCommand：按调用方配置过滤后的命令投影
  - CommandConfig：friendly name → 启用标志（仅 true / "true" 视为启用）
  - Result：命令调度结果，区分「未找到」与「执行失败」
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Extension 标记
*/
package types
