// =============================================================================
// dreddmarket 主入口
// =============================================================================
// 进程入口点：加载配置、装配日志/遥测/指标/存储/分布式锁/供应商客户端/
// 协调器，并暴露一个最小的健康检查与 Prometheus 指标 HTTP 面。不提供
// 完整的对外 HTTP API —— Market.Run 是供上层调用方（聊天适配器等，
// 不在本仓库范围内）导入本模块直接调用的库入口。
//
// 使用方法:
//
//	marketd serve                       # 启动进程
//	marketd serve --config config.yaml  # 指定配置文件
//	marketd version                     # 显示版本信息
//	marketd health                      # 健康检查
//	marketd migrate up                  # 运行数据库迁移
//	marketd migrate down                # 回滚最后一次迁移
//	marketd migrate status              # 查看迁移状态
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dreddmarket/engine/config"
	"github.com/dreddmarket/engine/internal/database"
	"github.com/dreddmarket/engine/internal/distlock"
	"github.com/dreddmarket/engine/internal/metrics"
	"github.com/dreddmarket/engine/internal/pool"
	"github.com/dreddmarket/engine/internal/telemetry"
	"github.com/dreddmarket/engine/llm/circuitbreaker"
	"github.com/dreddmarket/engine/llm/client"
	"github.com/dreddmarket/engine/llm/cost"
	"github.com/dreddmarket/engine/llm/providers"
	"github.com/dreddmarket/engine/llm/providers/anthropic"
	"github.com/dreddmarket/engine/llm/providers/gemini"
	"github.com/dreddmarket/engine/llm/providers/openai"
	"github.com/dreddmarket/engine/llm/ratelimit"
	"github.com/dreddmarket/engine/market"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting dreddmarket engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	poolManager, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		logger.Fatal("failed to configure connection pool", zap.Error(err))
	}
	defer poolManager.Close()

	store := database.NewMarketStore(poolManager, cfg.Market.MaxRetries)

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	defer redisClient.Close()
	locker := distlock.New(redisClient, cfg.Redis.LockPrefix, distlock.DefaultConfig())

	collector := metrics.NewCollector("dreddmarket", logger)

	clients, providerModels := buildProviderClients(cfg, logger)

	workers := pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig())
	defer workers.Close()

	coordinator := market.NewCoordinator(store, locker, clients, providerModels, toMarketConfig(cfg.Market), collector, logger)

	logger.Info("market engine wired",
		zap.Int("providers", len(clients)),
		zap.Int("max_concurrency", cfg.Market.MaxConcurrency),
	)

	// coordinator is the library entrypoint external callers invoke via
	// Coordinator.Run; this process only wires it and serves health/metrics.
	// workers bounds any background goroutines this process itself spawns
	// (e.g. future housekeeping tasks) independent of the coordinator's own
	// per-round concurrency cap.
	_ = coordinator

	srv := newHealthServer(cfg.Server, db, redisClient, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("health server failed", zap.Error(err))
		}
	}()

	waitForShutdown(srv, cfg.Server.ShutdownTimeout, logger)
	logger.Info("dreddmarket engine stopped")
}

// buildProviderClients wires one llm/client.Actor per enabled provider,
// each backed by its HTTP adapter, and returns both the ProviderClient map
// the coordinator calls through and the default-model map it consults when
// building round prompts.
func buildProviderClients(cfg *config.Config, logger *zap.Logger) (map[market.ProviderTag]market.ProviderClient, map[market.ProviderTag]string) {
	calculator := cost.NewCalculator()
	clients := make(map[market.ProviderTag]market.ProviderClient)
	models := make(map[market.ProviderTag]string)

	for tag, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		providerTag := market.ProviderTag(tag)
		timeout := time.Duration(pc.TimeoutMS) * time.Millisecond

		var adapter providers.Adapter
		switch providerTag {
		case market.ProviderOpenAI:
			adapter = openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Timeout: timeout}, calculator, logger)
		case market.ProviderAnthropic:
			adapter = anthropic.New(anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Timeout: timeout}, calculator, logger)
		case market.ProviderGemini:
			adapter = gemini.New(gemini.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Timeout: timeout}, calculator, logger)
		default:
			logger.Warn("unknown provider tag in configuration, skipping", zap.String("provider", tag))
			continue
		}

		rps := pc.RateLimitRPS
		if rps <= 0 {
			rps = 1
		}
		clients[providerTag] = client.New(client.Config{
			Provider:   providerTag,
			MaxRetries: cfg.Market.MaxRetries,
			RateLimit: ratelimit.Config{
				MaxTokens:      rps,
				RefillPerTick:  rps,
				RefillInterval: time.Second,
			},
			Breaker: circuitbreaker.Config{
				Threshold:       orDefaultInt(pc.BreakerConfig.Threshold, 3),
				RecoveryTimeout: orDefaultDuration(time.Duration(pc.BreakerConfig.RecoveryTimeoutMS)*time.Millisecond, 30*time.Second),
			},
		}, adapter, logger)
		models[providerTag] = pc.DefaultModel
	}

	return clients, models
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func toMarketConfig(mc config.MarketConfig) market.MarketConfig {
	return market.MarketConfig{
		MaxRounds:       mc.MaxRounds,
		MaxConcurrency:  mc.MaxConcurrency,
		ProviderTimeout: time.Duration(mc.ProviderTimeoutMS) * time.Millisecond,
		Convergence: market.ConvergenceConfig{
			ConfidenceThreshold: mc.ConvergenceConfidenceThreshold,
			OverlapThreshold:    mc.ConvergenceClaimOverlap,
		},
		Arbiter: market.ArbiterChainConfig{
			Default:  market.ArbiterSpec{Provider: market.ProviderTag(mc.ArbiterDefault.Provider), Model: mc.ArbiterDefault.Model},
			Fallback: market.ArbiterSpec{Provider: market.ProviderTag(mc.ArbiterFallback.Provider), Model: mc.ArbiterFallback.Model},
		},
	}
}

// =============================================================================
// 健康检查 HTTP 面
// =============================================================================

func newHealthServer(cfg config.ServerConfig, db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("redis unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func waitForShutdown(srv *http.Server, timeout time.Duration, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// =============================================================================
// 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// =============================================================================
// 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("dreddmarket %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`dreddmarket - multi-provider LLM consensus engine

Usage:
  marketd <command> [options]

Commands:
  serve     Start the process (health/metrics listener + wired engine)
  migrate   Database migration commands
  version   Show version information
  health    Check process health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  marketd serve
  marketd serve --config /etc/dreddmarket/config.yaml
  marketd migrate up
  marketd migrate status
  marketd health --addr http://localhost:8080
  marketd version`)
}

// =============================================================================
// 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := cfg.Format
	if encoding == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoding = "json"
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// openDatabase opens a GORM connection for the configured dialect.
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if dbCfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
