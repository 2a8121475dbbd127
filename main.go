package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xiumouer/waimai-ops-intelligence/api"
	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/db"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/maps"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
	"github.com/xiumouer/waimai-ops-intelligence/util"
	"github.com/xiumouer/waimai-ops-intelligence/websocket"
	"github.com/xiumouer/waimai-ops-intelligence/worker"
)

var interruptSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGINT,
}

func main() {
	config, err := util.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	if config.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals...)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(config.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot parse db config")
	}

	// 连接池参数（根据生产环境调整）
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	connPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to db")
	}

	if err := connPool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("cannot ping database")
	}

	log.Info().
		Int32("max_conns", poolConfig.MaxConns).
		Int32("min_conns", poolConfig.MinConns).
		Msg("database connection pool configured")

	runDBMigration(config.MigrationURL, config.DBSource)

	store := db.NewStore(connPool)

	if config.RedisAddress == "" {
		log.Fatal().Msg("REDIS_ADDRESS is not configured")
	}

	// 派单方案持久层（顺带验证 Redis 连接）
	assignStore, err := assignments.NewRedisStore(config.RedisAddress, config.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis - check REDIS_ADDRESS configuration")
	}
	log.Info().Str("redis_address", config.RedisAddress).Msg("Redis connection verified")

	// 位置与轨迹存储，HTTP、WebSocket 和后台任务共用
	traces := tracking.NewStore()

	redisOpt := asynq.RedisClientOpt{
		Addr:     config.RedisAddress,
		Password: config.RedisPassword,
	}

	waitGroup, ctx := errgroup.WithContext(ctx)

	taskDistributor := runTaskProcessor(ctx, waitGroup, config, redisOpt, store, traces, assignStore)
	runDispatchScheduler(ctx, waitGroup, config, taskDistributor)
	runGinServer(ctx, waitGroup, config, store, traces, assignStore, taskDistributor)

	err = waitGroup.Wait()
	if err != nil {
		log.Fatal().Err(err).Msg("error from wait group")
	}
}

func runDBMigration(migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create new migrate instance")
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal().Err(err).Msg("failed to run migrate up")
	}

	log.Info().Msg("db migrated successfully")
}

// newDrivingETASource 后台任务使用的驾车耗时来源；未配置 key 时返回 nil，
// 任务退回球面估算
func newDrivingETASource(config util.Config) worker.ETASource {
	if config.AMapKey == "" {
		return nil
	}
	client, err := maps.NewAMapClient(config.AMapKey)
	if err != nil {
		log.Warn().Err(err).Msg("cannot create amap client for worker, driving ETA disabled")
		return nil
	}
	return maps.NewGeoETA(maps.NewDrivingETA(client, config.AMapETAQPS, 1))
}

func runTaskProcessor(
	ctx context.Context,
	waitGroup *errgroup.Group,
	config util.Config,
	redisOpt asynq.RedisClientOpt,
	store db.Store,
	traces *tracking.Store,
	assignStore assignments.Store,
) worker.TaskDistributor {
	taskDistributor := worker.NewRedisTaskDistributor(redisOpt)

	dispatchConf := dispatch.AssignConfig{
		CapacityPerRider: config.DispatchCapacityPerRider,
		SpeedKmh:         config.DispatchSpeedKmh,
		ETALookupLimit:   config.DispatchETALookupLimit,
	}

	taskProcessor := worker.NewRedisTaskProcessor(
		redisOpt, store, traces, assignStore, newDrivingETASource(config), dispatchConf)
	log.Info().Msg("start task processor")

	waitGroup.Go(func() error {
		return taskProcessor.Start()
	})

	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown task processor")
		taskProcessor.Shutdown()
		log.Info().Msg("task processor is stopped")
		return nil
	})

	return taskDistributor
}

// runDispatchScheduler starts the periodic global dispatch scheduler
func runDispatchScheduler(
	ctx context.Context,
	waitGroup *errgroup.Group,
	config util.Config,
	taskDistributor worker.TaskDistributor,
) {
	scheduler := worker.NewScheduler(
		taskDistributor,
		config.GlobalDispatchCron,
		"", // 所有站点
		config.DispatchCapacityPerRider,
		config.DispatchSpeedKmh,
		config.AMapKey != "",
	)

	if err := scheduler.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start dispatch scheduler")
		return
	}

	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown dispatch scheduler")
		scheduler.Stop()
		return nil
	})
}

// runGinServer starts the Gin HTTP server and the WebSocket hub
func runGinServer(
	ctx context.Context,
	waitGroup *errgroup.Group,
	config util.Config,
	store db.Store,
	traces *tracking.Store,
	assignStore assignments.Store,
	taskDistributor worker.TaskDistributor,
) {
	wsHub := websocket.NewHub(ctx, traces)

	server, err := api.NewServer(config, store, traces, assignStore, wsHub, taskDistributor)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create server")
	}

	// 创建 http.Server 用于优雅关闭
	httpServer := &http.Server{
		Addr:    config.HTTPServerAddress,
		Handler: server.GetRouter(),
		// Avoid slowloris and stuck connections under pressure.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	waitGroup.Go(func() error {
		log.Info().Msg("start WebSocket Hub")
		wsHub.Run()
		return nil
	})

	waitGroup.Go(func() error {
		log.Info().Msgf("start HTTP server at %s", config.HTTPServerAddress)
		err = httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed to serve")
			return err
		}
		return nil
	})

	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown HTTP server")

		// 给予10秒时间完成正在处理的请求
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		wsHub.Shutdown()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server forced to shutdown")
			return err
		}

		log.Info().Msg("HTTP server is stopped")
		return nil
	})
}
