// =============================================================================
// agentcmd 主入口
// =============================================================================
// 命令注册表服务与命令行工具
//
// 使用方法:
//
//	agentcmd serve                              # 启动 HTTP 服务
//	agentcmd serve --config config.yaml         # 指定配置文件
//	agentcmd commands list [--agent writer]     # 列出已加载命令
//	agentcmd commands exec "Count Words" --arg text="a b c"
//	agentcmd prompts list|get|add|delete        # 管理提示词模板
//	agentcmd version                            # 显示版本信息
// =============================================================================

package main

import (
	"os"

	_ "github.com/BaSui01/agentcmd/extension/builtin"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
