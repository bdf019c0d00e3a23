// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理市场引擎持久化层的 Schema 迁移，支持
PostgreSQL、MySQL 与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各方言的 SQL 迁移文件，结合 golang-migrate
引擎实现版本化的 Schema 变更管理。四张表 threads、runs、
provider_answers、dredd_outputs 的建表与回滚脚本按方言分别维护在
migrations/{postgres,mysql,sqlite} 下。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例
    与数据库连接管理。
  - Config：迁移配置，包含数据库类型、连接 URL、迁移表名与锁超时。
  - CLI：命令行交互层，封装 Migrator 提供格式化输出，供
    cmd/marketd 的 migrate 子命令调用。

# 主要能力

  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig /
    NewMigratorFromURL 支持从不同配置源快速创建迁移器。
  - 辅助工具：ParseDatabaseType 解析类型字符串，BuildDatabaseURL
    按方言拼接连接 URL。
*/
package migration
