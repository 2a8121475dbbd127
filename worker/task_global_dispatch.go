package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

const (
	TaskGlobalDispatch = "dispatch:global_assign"
)

// GlobalDispatchPayload 全局派单任务载荷
type GlobalDispatchPayload struct {
	BatchID          string  `json:"batch_id"` // 批次号，用于日志追踪
	Site             string  `json:"site,omitempty"`
	Date             string  `json:"date"` // 方案落库日期，空则取处理当日
	CapacityPerRider int     `json:"capacity_per_rider"`
	SpeedKmh         float64 `json:"speed_kmh"`
	UseDrivingETA    bool    `json:"use_driving_eta"`
}

// NewGlobalDispatchPayload 构造带批次号的任务载荷
func NewGlobalDispatchPayload(site string, capacity int, speedKmh float64, useDrivingETA bool) *GlobalDispatchPayload {
	return &GlobalDispatchPayload{
		BatchID:          uuid.New().String(),
		Site:             site,
		CapacityPerRider: capacity,
		SpeedKmh:         speedKmh,
		UseDrivingETA:    useDrivingETA,
	}
}

// DistributeTaskGlobalDispatch 分发全局派单任务
func (distributor *RedisTaskDistributor) DistributeTaskGlobalDispatch(
	ctx context.Context,
	payload *GlobalDispatchPayload,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskGlobalDispatch, jsonPayload, opts...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	log.Debug().
		Str("type", task.Type()).
		Str("queue", info.Queue).
		Str("batch_id", payload.BatchID).
		Str("site", payload.Site).
		Msg("enqueued global dispatch task")

	return nil
}

// ProcessTaskGlobalDispatch 处理全局派单任务：取订单池与有位置的骑手，
// 跑一轮贪心分派，把每个骑手的非空方案落库
func (processor *RedisTaskProcessor) ProcessTaskGlobalDispatch(ctx context.Context, task *asynq.Task) error {
	var payload GlobalDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	log.Info().
		Str("batch_id", payload.BatchID).
		Str("site", payload.Site).
		Int("capacity", payload.CapacityPerRider).
		Msg("processing global dispatch task")

	result, err := processor.runGlobalDispatch(ctx, &payload)
	if err != nil {
		return err
	}

	date := payload.Date
	if date == "" {
		date = assignments.DateKey(time.Now())
	}
	for riderID, orderIDs := range result.Orders {
		if len(orderIDs) == 0 {
			continue
		}
		if err := processor.assignStore.Save(ctx, riderID, date, orderIDs); err != nil {
			return fmt.Errorf("save assignment for rider %s: %w", riderID, err)
		}
	}

	log.Info().
		Str("batch_id", payload.BatchID).
		Int("riders_assigned", len(result.Orders)).
		Int("orders_unassigned", len(result.Unassigned)).
		Msg("global dispatch completed")

	return nil
}

// runGlobalDispatch 执行一轮全局派单
func (processor *RedisTaskProcessor) runGlobalDispatch(ctx context.Context, payload *GlobalDispatchPayload) (dispatch.Assignment, error) {
	var pool []dispatch.Order
	var err error
	if payload.Site != "" && payload.Site != dispatch.SiteAll {
		pool, err = processor.store.ListOrdersBySite(ctx, payload.Site)
	} else {
		pool, err = processor.store.ListOrders(ctx)
	}
	if err != nil {
		return dispatch.Assignment{}, fmt.Errorf("list orders: %w", err)
	}

	// 只有上报过位置的骑手参与分派
	riders := processor.traces.Positions()

	cfg := processor.dispatchConf
	if payload.CapacityPerRider > 0 {
		cfg.CapacityPerRider = payload.CapacityPerRider
	}
	if payload.SpeedKmh > 0 {
		cfg.SpeedKmh = payload.SpeedKmh
	}
	if payload.UseDrivingETA && processor.eta != nil {
		cfg.ETA = processor.eta.TravelMinutes
	} else {
		cfg.ETA = nil
	}

	return dispatch.AssignOrders(ctx, riders, pool, cfg), nil
}
