// Package config 提供 agentcmd 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTCMD）的顺序叠加，
// 并提供扩展目录监听器 DirWatcher，用于在脚本变化时触发注册表重载。
package config
