package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler 全局派单定时调度器：按 cron 表达式周期性入队派单任务，
// 让车队方案跟随订单池与骑手位置的变化刷新
type Scheduler struct {
	cron        *cron.Cron
	distributor TaskDistributor

	spec          string
	site          string
	capacity      int
	speedKmh      float64
	useDrivingETA bool
}

// NewScheduler 创建调度器。spec 为空表示不启用定时派单。
func NewScheduler(distributor TaskDistributor, spec, site string, capacity int, speedKmh float64, useDrivingETA bool) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		distributor:   distributor,
		spec:          spec,
		site:          site,
		capacity:      capacity,
		speedKmh:      speedKmh,
		useDrivingETA: useDrivingETA,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	if s.spec == "" {
		log.Info().Msg("global dispatch scheduler disabled (no cron spec)")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, s.enqueue)
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("global dispatch scheduler started")

	// 启动时立即执行一次
	go s.enqueue()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info().Msg("global dispatch scheduler stopped")
}

func (s *Scheduler) enqueue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := NewGlobalDispatchPayload(s.site, s.capacity, s.speedKmh, s.useDrivingETA)
	if err := s.distributor.DistributeTaskGlobalDispatch(ctx, payload); err != nil {
		log.Error().Err(err).Str("batch_id", payload.BatchID).Msg("failed to enqueue global dispatch task")
	}
}
