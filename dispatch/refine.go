package dispatch

import (
	"context"
	"sync/atomic"
)

// ETAFunc 外部耗时查询：返回 from→to 的驾车分钟数。
// 查询失败返回 ok=false，调用方回退到球面估算。
type ETAFunc func(ctx context.Context, from, to GeoPoint) (minutes int, ok bool)

// Refiner 路线精修的代次控制。
// 每次输入变化（骑手位置、订单集合）调用 Invalidate 递增代次，
// 旧代次的精修结果整体作废，绝不与新路线合并。
type Refiner struct {
	gen atomic.Uint64
}

// Invalidate 作废所有在途精修，返回新代次
func (r *Refiner) Invalidate() uint64 {
	return r.gen.Add(1)
}

// Generation 当前代次
func (r *Refiner) Generation() uint64 {
	return r.gen.Load()
}

// Refine 沿路线顺序精修每一步的耗时：第 i 步的起点是第 i-1 步的终点，
// 因此查询严格有序、不可并行。单步查询失败保留原估算值继续。
// 上下文取消或代次落后时返回 ok=false，结果应整体丢弃。
func (r *Refiner) Refine(ctx context.Context, gen uint64, origin GeoPoint, steps []PlanStep, eta ETAFunc) ([]PlanStep, bool) {
	refined := make([]PlanStep, len(steps))
	copy(refined, steps)

	current := origin
	for i := range refined {
		if ctx.Err() != nil || r.gen.Load() != gen {
			return nil, false
		}
		if minutes, ok := eta(ctx, current, refined[i].Position); ok {
			refined[i].TravelMinutes = minutes
		}
		current = refined[i].Position
	}

	if ctx.Err() != nil || r.gen.Load() != gen {
		return nil, false
	}
	return refined, true
}
