// 版权所有 2026 Dredd Market Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理与市场引擎持久层
（component I）的具体实现。

# 概述

PoolManager 封装 GORM 与 database/sql 的连接池配置，统一管理连接
生命周期、空闲回收与最大连接数限制，并提供带指数退避的事务重试。
MarketStore 在其上实现 market.Store 接口，把线程/运行/回答/仲裁
输出落到四张表（threads、runs、provider_answers、dredd_outputs）。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()、
    WithTransactionRetry() 等方法。
  - PoolConfig：连接池配置。
  - ThreadModel / RunModel / ProviderAnswerModel / ArbiterOutputModel：
    market 领域对象的 GORM 行映射。
  - MarketStore：market.Store 的 GORM 实现，每次写入独立事务，
    在死锁/序列化失败/连接错误上通过 WithTransactionRetry 重试。

# 主要能力

  - 连接池调优与健康检查（PoolManager 不变）。
  - AutoMigrateMarket：本地开发与测试下的自动建表（生产环境使用
    cmd/marketd 的 golang-migrate 迁移脚本代替）。
  - JSONStringSlice / JSONRaw：jsonb 列的 Valuer/Scanner 适配。
*/
package database
