// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供市场引擎（market engine）的进程入口 marketd。

# 概述

marketd 不对外暴露聊天/问答 HTTP API —— 消费 Coordinator.Run 的调用
方在本仓库范围之外。marketd 自身只负责：加载配置、装配日志（zap）、
遥测（OTel）、Prometheus 指标、数据库连接池与 MarketStore、Redis
分布式锁、各 provider 的 Actor 客户端与协调器，然后暴露一个最小的
健康检查与 /metrics HTTP 面；此外提供基于 golang-migrate 的 migrate
子命令。

# 主要能力

  - 子命令：serve（装配并监听健康检查/指标）、migrate（数据库迁移）、
    version、health
  - serve 装配链：config -> zap logger -> telemetry -> gorm.DB（按
    driver 选择 postgres/mysql/sqlite dialector）-> PoolManager ->
    MarketStore -> redis.Client -> distlock.Locker -> 每个已启用
    provider 一个 llm/client.Actor -> Collector -> market.Coordinator
  - 健康检查面：/healthz（存活）、/readyz（数据库 + redis 连通性）、
    /metrics（promhttp.Handler，由 internal/metrics 注册到默认
    registerer）
  - 优雅关闭：信号监听 → 关闭健康检查 HTTP 服务器
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
