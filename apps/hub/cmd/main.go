package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/handler"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/reputation"
	"PairServer/apps/hub/internal/repository"
	"PairServer/apps/hub/internal/server"
	"PairServer/apps/hub/internal/service"
	"PairServer/apps/hub/internal/svc"
	"PairServer/apps/hub/mq"
	"PairServer/config"
	"PairServer/pkg/async"
	"PairServer/pkg/ctxmeta"
	"PairServer/pkg/logger"
	pkgmysql "PairServer/pkg/mysql"
	pkgredis "PairServer/pkg/redis"

	"github.com/bwmarrin/snowflake"
)

func main() {
	// 初始化根上下文，并放入一个默认 trace_id。
	// hub 不是从 HTTP 请求起步，先放一个固定值用于启动期日志串联。
	ctx := ctxmeta.WithTraceID(context.Background(), "0")

	// 1) 初始化日志组件（必须最先完成，后续模块初始化都依赖日志输出）。
	logCfg := config.DefaultLoggerConfig()
	l, err := logger.Build(logCfg)
	if err != nil {
		panic(err)
	}
	logger.ReplaceGlobal(l)
	defer func() {
		_ = l.Sync()
	}()

	// 2) 初始化 MySQL。配对/权限/申请的事实来源，不可降级。
	mysqlCfg := config.DefaultMySQLConfig()
	db, err := pkgmysql.Build(mysqlCfg)
	if err != nil {
		logger.Fatal(ctx, "Hub 服务 MySQL 初始化失败",
			logger.ErrorField("error", err),
		)
	}
	pkgmysql.ReplaceGlobal(db)

	// 3) 初始化 Redis。presence 与配对列表缓存都落在这里，不可降级。
	redisCfg := config.DefaultRedisConfig()
	redisClient, err := pkgredis.Build(redisCfg)
	if err != nil {
		logger.Fatal(ctx, "Hub 服务 Redis 初始化失败",
			logger.ErrorField("error", err),
		)
	}
	pkgredis.ReplaceGlobal(redisClient)

	// 4) 初始化 Kafka Redis 重试链路与协程池。
	// 生产端把 presence 写失败的命令投递到重试 topic，消费端按原命令回放。
	kafkaCfg := config.DefaultKafkaConfig()
	mq.InitProducer(kafkaCfg)
	retryConsumer := mq.NewRedisRetryConsumer(kafkaCfg, redisClient)
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	go retryConsumer.Run(consumerCtx)

	if err := async.Init(config.DefaultAsyncConfig()); err != nil {
		logger.Fatal(ctx, "协程池初始化失败",
			logger.ErrorField("error", err),
		)
	}

	// 5) 组装仓储层。
	userRepo := repository.NewUserRepository(db, redisClient)
	pairRepo := repository.NewPairRepository(db, redisClient)
	requestRepo := repository.NewRequestRepository(db, redisClient)
	permRepo := repository.NewPermissionRepository(db, redisClient)
	blockRepo := repository.NewBlockRepository(db, redisClient)
	presenceRepo := repository.NewPresenceRepository(redisClient)

	// 6) 组装核心依赖：连接管理、雷达分区、推送分发、信誉裁定。
	hubCfg := config.DefaultHubConfig()
	connManager := manager.NewConnectionManager()
	radarManager := manager.NewRadarManager(hubCfg.RadarChatCapacity)
	dispatcher := dispatch.NewDispatcher(connManager)
	repClient := reputation.NewClient(hubCfg.ReputationEndpoint, hubCfg.ReputationTimeout, userRepo)

	node, err := snowflake.NewNode(hubCfg.ShardID)
	if err != nil {
		logger.Fatal(ctx, "snowflake 节点初始化失败",
			logger.Int64("shard_id", hubCfg.ShardID),
			logger.ErrorField("error", err),
		)
	}

	// 7) 组装业务服务与 /ws 入口。
	sessionSvc := svc.NewSessionService(userRepo)
	lifecycleSvc := service.NewLifecycleService(hubCfg.ServerName, int(hubCfg.ShardID),
		userRepo, pairRepo, permRepo, presenceRepo, dispatcher)
	pairingSvc := service.NewPairingService(userRepo, pairRepo, requestRepo, blockRepo, presenceRepo, dispatcher)
	permissionSvc := service.NewPermissionService(pairRepo, permRepo, presenceRepo, dispatcher)
	radarSvc := service.NewRadarService(userRepo, blockRepo, radarManager, dispatcher, repClient, node)
	userSvc := service.NewUserService(userRepo, pairRepo, requestRepo, presenceRepo, dispatcher)

	wsHandler := handler.NewWSHandler(hubCfg, connManager,
		sessionSvc, lifecycleSvc, pairingSvc, permissionSvc, radarSvc, userSvc)

	// 8) 构建 HTTP 服务（/health、/metrics、/ws）并后台启动监听。
	srvCfg := server.DefaultConfig()
	srv := server.New(srvCfg, wsHandler)

	go func() {
		logger.Info(ctx, "Hub 服务启动中",
			logger.String("addr", srvCfg.Addr),
			logger.String("server_name", hubCfg.ServerName),
		)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Hub 服务启动失败",
				logger.ErrorField("error", err),
			)
		}
	}()

	// 9) 阻塞等待系统退出信号（Ctrl+C / SIGTERM）。
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 10) 优雅关闭流程：
	// - 先关闭连接管理器，主动断开所有 WebSocket 连接（触发各自的下线清理）；
	// - 再关闭 HTTP 服务，等待进行中的请求在超时时间内结束；
	// - 最后停掉 Kafka 链路和协程池。
	logger.Info(ctx, "Hub 服务开始优雅停机")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	connManager.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Hub 服务优雅停机失败",
			logger.ErrorField("error", err),
		)
	}

	stopConsumer()
	if err := retryConsumer.Close(); err != nil {
		logger.Warn(ctx, "Kafka 消费者关闭失败",
			logger.ErrorField("error", err),
		)
	}
	if err := mq.CloseProducer(); err != nil {
		logger.Warn(ctx, "Kafka 生产者关闭失败",
			logger.ErrorField("error", err),
		)
	}
	if err := async.Release(); err != nil {
		logger.Warn(ctx, "协程池释放失败",
			logger.ErrorField("error", err),
		)
	}

	logger.Info(ctx, "Hub 服务已退出")
}
