// Package worker 承载派单服务的后台任务：全局派单在 asynq 队列里异步执行，
// 由 API 触发或 cron 定时触发。
package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

// TaskDistributor 任务分发接口
type TaskDistributor interface {
	// DistributeTaskGlobalDispatch 分发全局派单任务
	DistributeTaskGlobalDispatch(
		ctx context.Context,
		payload *GlobalDispatchPayload,
		opts ...asynq.Option,
	) error
}

type RedisTaskDistributor struct {
	client *asynq.Client
}

func NewRedisTaskDistributor(redisOpt asynq.RedisClientOpt) TaskDistributor {
	client := asynq.NewClient(redisOpt)
	return &RedisTaskDistributor{
		client: client,
	}
}
