// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 提供市场引擎（market engine）的分层配置加载。

# 概述

config 包按 "默认值 -> YAML 文件 -> 环境变量" 的优先级合并出最终的
Config，供 cmd/marketd 在启动时一次性加载；加载完成后的 Config 在
进程生命周期内是不可变的（Providers 中启用的提供方集合除外，
允许在两次运行之间收缩）。

# 核心结构

  - Config: 顶层配置聚合，涵盖 Server、Database、Redis、Market、
    Providers、Log、Telemetry 七个子配置
  - Loader: 配置加载器，支持 Builder 模式链式设置文件路径、
    环境变量前缀（默认 MARKET_）与自定义验证器
  - MarketConfig: 轮次调度、收敛阈值与仲裁链参数，对应配置表中
    的 market.* 键
  - ProviderConfig: 单个提供方的启用状态、默认模型、超时、
    速率限制与熔断参数

# 主要能力

  - 多源加载: YAML 文件、环境变量（MARKET_ 前缀，按字段路径
    反射展开）、内置默认值
  - 配置验证: Config.Validate() 对端口范围、轮次/并发上限、
    收敛阈值区间与已启用提供方的必填字段做基础校验

# 使用示例

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("MARKET").
		Load()
*/
package config
