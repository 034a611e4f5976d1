/*
包 agentconfig 保存每个 Agent 的命令开关配置（friendly_name → enabled）。

# 存储驱动

  - MemoryStore：进程内存储，适用于开发与静态配置。
  - GormStore：SQL 存储（postgres、mysql、sqlite），启动时自动迁移表结构。
  - RedisStore：每个 Agent 一个 Hash，外加一个索引 Set。
  - CachedStore：在任意 Store 前加一层 Redis 读缓存，写入后失效。

NewStore 按 StoreType 选择实现；Seed 将配置文件中的静态 Agent 写入存储；
AvailableCommands 读取 Agent 配置并交给注册表过滤出可用命令。

未找到的 Agent 返回错误码 AGENT_NOT_FOUND，且满足 errors.Is(err, ErrAgentNotFound)。
*/
package agentconfig
