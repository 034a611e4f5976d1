/*
包 cache 提供基于 Redis 的缓存管理能力，支持键前缀、健康检查与 JSON 序列化。

# 概述

本包封装 go-redis 客户端，为上层存储提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭，
并通过 Client 暴露底层客户端，使 Redis 存储与缓存共享同一连接池。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete 以及 GetJSON/SetJSON。
  - Config：缓存配置，包含地址、键前缀、连接池大小、默认 TTL 与健康检查间隔。

# 错误语义

未命中返回 ErrCacheMiss，关闭后调用返回 ErrClosed，均可用 errors.Is 判断。
*/
package cache
