/*
包 database 提供基于 GORM 的数据库连接池管理，支持 postgres、mysql 与
sqlite（纯 Go 实现）三种驱动。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close()，并实现健康检查接口。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期与健康检查间隔。

# 主要能力

  - Open：按 config.DatabaseConfig 选择方言并创建连接池。
  - 健康检查：后台定时 PingContext 探活，输出连接数与空闲数。
*/
package database
