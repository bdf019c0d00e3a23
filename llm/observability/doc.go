// 版权所有 2026 Dredd Market Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 提供单次 provider 调用级别的 OpenTelemetry 埋点。

# 概述

本包基于 OpenTelemetry 标准，为每一次 provider 调用提供 span 与
指标记录：请求发起时开启 span 并增加活跃请求计数，调用结束后
记录延迟、Token 消耗、成本与错误码。

按运行时维度聚合（熔断器状态迁移、令牌桶拒绝、轮次耗时、运行终态）
的 Prometheus 指标由 internal/metrics 单独负责，二者不重叠。

# 核心接口

  - Metrics：基于 OpenTelemetry Meter 的指标收集器，提供请求计数、
    Token 计数、延迟直方图、成本直方图与活跃请求 Gauge。
  - RequestAttrs / ResponseAttrs：一次 provider 调用的请求侧与
    响应侧属性。
*/
package observability
