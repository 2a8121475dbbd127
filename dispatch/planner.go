package dispatch

// PlanRoute 为一名骑手规划多订单配送顺序（贪心最近邻）。
//
// 每轮从剩余订单中选下一途经点最近的一单：未取餐的订单插入取餐步后
// 无条件紧跟送达步（先取后送，送达步不参与竞争）；已取餐的订单只剩
// 送达步。每步的距离与耗时均相对上一步终点计算。
// 终态订单直接忽略。结果确定且可复现。
func PlanRoute(origin GeoPoint, orders []Order, speedKmh float64) []PlanStep {
	remaining := make([]Order, 0, len(orders))
	for _, order := range orders {
		if order.Dispatchable() {
			remaining = append(remaining, order)
		}
	}

	steps := make([]PlanStep, 0, len(remaining)*2)
	current := origin

	for len(remaining) > 0 {
		best := 0
		bestDist := -1.0
		for i, order := range remaining {
			waypoint, _ := order.NextWaypoint()
			dist := DistanceMeters(current, waypoint)
			if bestDist < 0 || dist < bestDist {
				best = i
				bestDist = dist
			}
		}

		order := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)

		if order.PickedAt != nil {
			steps = append(steps, PlanStep{
				Kind:           WaypointCustomer,
				OrderID:        order.ID,
				Position:       order.Customer,
				DistanceMeters: bestDist,
				TravelMinutes:  EstimateTravelMinutes(bestDist, speedKmh),
			})
			current = order.Customer
			continue
		}

		steps = append(steps, PlanStep{
			Kind:           WaypointMerchant,
			OrderID:        order.ID,
			Position:       order.Merchant,
			DistanceMeters: bestDist,
			TravelMinutes:  EstimateTravelMinutes(bestDist, speedKmh),
		})
		legDist := DistanceMeters(order.Merchant, order.Customer)
		steps = append(steps, PlanStep{
			Kind:           WaypointCustomer,
			OrderID:        order.ID,
			Position:       order.Customer,
			DistanceMeters: legDist,
			TravelMinutes:  EstimateTravelMinutes(legDist, speedKmh),
		})
		current = order.Customer
	}

	return steps
}

// RouteTotals 汇总一条路线的总距离（米）与总耗时（分钟）
func RouteTotals(steps []PlanStep) (meters float64, minutes int) {
	for _, step := range steps {
		meters += step.DistanceMeters
		minutes += step.TravelMinutes
	}
	return meters, minutes
}
