package worker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/db"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// ETASource 精确耗时来源（由 maps.DrivingETA 实现），可为 nil
type ETASource interface {
	TravelMinutes(ctx context.Context, from, to dispatch.GeoPoint) (int, bool)
}

// TaskProcessor 任务处理接口
type TaskProcessor interface {
	Start() error
	Shutdown()
	// ProcessTaskGlobalDispatch 处理全局派单任务
	ProcessTaskGlobalDispatch(ctx context.Context, task *asynq.Task) error
}

type RedisTaskProcessor struct {
	server       *asynq.Server
	store        db.Store
	traces       *tracking.Store
	assignStore  assignments.Store
	eta          ETASource // 为 nil 时全部使用球面估算
	dispatchConf dispatch.AssignConfig
}

func NewRedisTaskProcessor(
	redisOpt asynq.RedisClientOpt,
	store db.Store,
	traces *tracking.Store,
	assignStore assignments.Store,
	eta ETASource,
	dispatchConf dispatch.AssignConfig,
) TaskProcessor {
	logger := NewLogger()
	redis.SetLogger(logger)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 10,
				QueueDefault:  5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("type", task.Type()).
					Bytes("payload", task.Payload()).Msg("process task failed")
			}),
			Logger:          logger,
			ShutdownTimeout: 10 * time.Second,
		},
	)

	return &RedisTaskProcessor{
		server:       server,
		store:        store,
		traces:       traces,
		assignStore:  assignStore,
		eta:          eta,
		dispatchConf: dispatchConf,
	}
}

// NewTestTaskProcessor 创建用于测试的处理器实例（不需要Redis连接）
func NewTestTaskProcessor(
	store db.Store,
	traces *tracking.Store,
	assignStore assignments.Store,
	eta ETASource,
	dispatchConf dispatch.AssignConfig,
) *RedisTaskProcessor {
	return &RedisTaskProcessor{
		store:        store,
		traces:       traces,
		assignStore:  assignStore,
		eta:          eta,
		dispatchConf: dispatchConf,
	}
}

func (processor *RedisTaskProcessor) Start() error {
	mux := asynq.NewServeMux()

	// 注册任务处理器
	mux.HandleFunc(TaskGlobalDispatch, processor.ProcessTaskGlobalDispatch)

	return processor.server.Start(mux)
}

func (processor *RedisTaskProcessor) Shutdown() {
	processor.server.Shutdown()
}
