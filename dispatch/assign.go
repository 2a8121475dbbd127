package dispatch

import (
	"context"
	"sort"
)

// AssignConfig 全局分派配置
type AssignConfig struct {
	CapacityPerRider int     `json:"capacity_per_rider"` // 单骑手最大接单数
	SpeedKmh         float64 `json:"speed_kmh"`
	ETA              ETAFunc `json:"-"` // 为空则全部使用球面估算
	ETALookupLimit   int     `json:"eta_lookup_limit"` // 每骑手最多精确查询最近的 N 单
}

// DefaultAssignConfig 默认分派配置
func DefaultAssignConfig() AssignConfig {
	return AssignConfig{
		CapacityPerRider: 3,
		SpeedKmh:         18,
		ETALookupLimit:   50,
	}
}

// Assignment 全局分派结果
type Assignment struct {
	Orders     map[string][]string   `json:"orders"` // riderID -> 有序订单号
	Routes     map[string][]PlanStep `json:"routes"` // riderID -> 配送路线
	Unassigned []string              `json:"unassigned,omitempty"`
}

// AssignOrders 车队级贪心派单。
//
// 构造全部（骑手, 可派订单）组合并按成本稳定升序排序，从最便宜的组合
// 开始扫描：订单未派出且骑手未满载则成交，已成交的组合绝不回退。
// 成本默认为球面估算分钟数；配置了 ETA 时，每个骑手按直线距离最近的
// ETALookupLimit 单使用精确查询（失败回退估算），其余仍用估算，
// 控制外部请求量。同成本组合按骑手序、订单序成交，结果确定。
// 最后对每个骑手的成交订单跑一次路径规划。
func AssignOrders(ctx context.Context, riders []RiderPosition, pool []Order, cfg AssignConfig) Assignment {
	if cfg.CapacityPerRider <= 0 {
		cfg.CapacityPerRider = 3
	}
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 18
	}

	open := make([]Order, 0, len(pool))
	for _, order := range pool {
		if order.Dispatchable() {
			open = append(open, order)
		}
	}

	result := Assignment{
		Orders: make(map[string][]string, len(riders)),
		Routes: make(map[string][]PlanStep, len(riders)),
	}
	if len(riders) == 0 || len(open) == 0 {
		for _, order := range open {
			result.Unassigned = append(result.Unassigned, order.ID)
		}
		return result
	}

	pairs := buildPairs(ctx, riders, open, cfg)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].CostMinutes < pairs[j].CostMinutes
	})

	assigned := make(map[string]bool, len(open))
	load := make(map[string]int, len(riders))
	for _, pair := range pairs {
		if assigned[pair.OrderID] || load[pair.RiderID] >= cfg.CapacityPerRider {
			continue
		}
		assigned[pair.OrderID] = true
		load[pair.RiderID]++
		result.Orders[pair.RiderID] = append(result.Orders[pair.RiderID], pair.OrderID)
	}

	byID := make(map[string]Order, len(open))
	for _, order := range open {
		byID[order.ID] = order
		if !assigned[order.ID] {
			result.Unassigned = append(result.Unassigned, order.ID)
		}
	}

	for _, rider := range riders {
		orderIDs := result.Orders[rider.RiderID]
		if len(orderIDs) == 0 {
			continue
		}
		riderOrders := make([]Order, 0, len(orderIDs))
		for _, id := range orderIDs {
			riderOrders = append(riderOrders, byID[id])
		}
		result.Routes[rider.RiderID] = PlanRoute(rider.Position, riderOrders, cfg.SpeedKmh)
	}

	return result
}

// buildPairs 骑手优先序构造候选组合，并为每骑手最近的若干单做精确查询
func buildPairs(ctx context.Context, riders []RiderPosition, open []Order, cfg AssignConfig) []Pair {
	pairs := make([]Pair, 0, len(riders)*len(open))

	for _, rider := range riders {
		riderPairs := make([]Pair, 0, len(open))
		dists := make(map[string]float64, len(open))
		for _, order := range open {
			waypoint, _ := order.NextWaypoint()
			dist := DistanceMeters(rider.Position, waypoint)
			dists[order.ID] = dist
			riderPairs = append(riderPairs, Pair{
				RiderID:     rider.RiderID,
				OrderID:     order.ID,
				CostMinutes: EstimateTravelMinutes(dist, cfg.SpeedKmh),
				Waypoint:    waypoint,
			})
		}

		if cfg.ETA != nil && cfg.ETALookupLimit > 0 {
			nearest := nearestPairIndexes(riderPairs, dists, cfg.ETALookupLimit)
			for _, idx := range nearest {
				if minutes, ok := cfg.ETA(ctx, rider.Position, riderPairs[idx].Waypoint); ok {
					riderPairs[idx].CostMinutes = minutes
				}
			}
		}

		pairs = append(pairs, riderPairs...)
	}

	return pairs
}

// nearestPairIndexes 按直线距离返回最近 limit 个组合的下标
func nearestPairIndexes(pairs []Pair, dists map[string]float64, limit int) []int {
	idx := make([]int, len(pairs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return dists[pairs[idx[i]].OrderID] < dists[pairs[idx[j]].OrderID]
	})
	if len(idx) > limit {
		idx = idx[:limit]
	}
	return idx
}
