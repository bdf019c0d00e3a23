// 版权所有 2026 Dredd Market Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的市场引擎指标采集能力，覆盖
provider 调用、熔断器/限流、轮次与运行结果、以及数据库连接池。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，使用 promauto 自动注册到默认 Registry。

# 主要能力

  - Provider 指标：调用总数（按 provider/model/status 分组）、
    调用耗时、Token 用量（input/output）、累计成本。
  - 熔断器/限流指标：状态迁移计数、令牌桶拒绝计数。
  - 市场协调器指标：单轮耗时、运行终态计数、每次运行完成的轮次分布。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
