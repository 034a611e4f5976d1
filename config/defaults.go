// =============================================================================
// 📦 agentcmd 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentcmd/extension"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Extensions: DefaultExtensionsConfig(),
		Dispatch:   DefaultDispatchConfig(),
		Prompts:    DefaultPromptsConfig(),
		Agents:     DefaultAgentsConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultExtensionsConfig 返回默认扩展配置
func DefaultExtensionsConfig() ExtensionsConfig {
	return ExtensionsConfig{
		Dir:             extension.DefaultDir,
		UnknownSettings: string(extension.UnknownIgnore),
		Watch:           false,
		WatchDebounce:   500 * time.Millisecond,
		ScanConcurrency: 4,
	}
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Timeout:        extension.DefaultTimeout,
		SettingsPolicy: string(extension.SettingsShared),
		RateLimitRPS:   0,
		RateLimitBurst: 1,
	}
}

// DefaultPromptsConfig 返回默认提示词配置
func DefaultPromptsConfig() PromptsConfig {
	return PromptsConfig{
		BaseDir: "prompts",
	}
}

// DefaultAgentsConfig 返回默认 Agent 配置存储
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		Store:    "memory",
		CacheTTL: 0,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "agentcmd:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentcmd",
		Password:        "",
		Name:            "agentcmd",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcmd",
		SampleRate:   0.1,
	}
}
