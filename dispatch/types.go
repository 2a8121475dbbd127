// Package dispatch 提供骑手派单核心算法：候选订单评分、单骑手路径规划、
// 全局贪心分派。该包独立于存储和传输层，便于测试和升级。
package dispatch

import "time"

// GeoPoint 地理坐标（WGS 经纬度）
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OrderStatus 订单状态
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"          // 待接单
	StatusAccepted        OrderStatus = "accepted"         // 已接单
	StatusArrivedMerchant OrderStatus = "arrived_merchant" // 已到店
	StatusDelivering      OrderStatus = "delivering"       // 配送中
	StatusCompleted       OrderStatus = "completed"        // 已完成
	StatusCancelled       OrderStatus = "cancelled"        // 已取消
)

// WaypointKind 途经点类型
type WaypointKind string

const (
	WaypointMerchant WaypointKind = "merchant" // 取餐点
	WaypointCustomer WaypointKind = "customer" // 送达点
)

// Order 派单视角下的订单快照
type Order struct {
	ID          string      `json:"id"`
	Status      OrderStatus `json:"status"`
	Merchant    GeoPoint    `json:"merchant"`
	Customer    GeoPoint    `json:"customer"`
	ETA         time.Time   `json:"eta"` // 承诺送达时间
	PickedAt    *time.Time  `json:"picked_at,omitempty"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	RiderID     string      `json:"rider_id,omitempty"`
	Site        string      `json:"site,omitempty"` // 所属站点
}

// Dispatchable 该订单是否还需要配送（终态订单不参与派单）
func (o Order) Dispatchable() bool {
	return o.Status != StatusCompleted && o.Status != StatusCancelled
}

// NextWaypoint 订单的下一个途经点：已取餐则去送达点，否则先去取餐点。
// 途经点永远按状态推导，不落库。
func (o Order) NextWaypoint() (GeoPoint, WaypointKind) {
	if o.PickedAt != nil {
		return o.Customer, WaypointCustomer
	}
	return o.Merchant, WaypointMerchant
}

// Rider 骑手档案
type Rider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Site string `json:"site,omitempty"`
}

// RiderPosition 参与全局分派的骑手及其当前位置
type RiderPosition struct {
	RiderID  string   `json:"rider_id"`
	Position GeoPoint `json:"position"`
}

// CandidateScore 候选订单评分结果（纯派生数据）
type CandidateScore struct {
	Order          Order        `json:"order"`
	Kind           WaypointKind `json:"kind"`
	Waypoint       GeoPoint     `json:"waypoint"`
	DistanceMeters float64      `json:"distance_meters"`
	TravelMinutes  int          `json:"travel_minutes"`
	ETAMinutesLeft int          `json:"eta_minutes_left"`
	Urgency        int          `json:"urgency"` // 剩余时间 - 赶路时间，越小越紧急
}

// PlanStep 路径规划中的一步
type PlanStep struct {
	Kind           WaypointKind `json:"kind"`
	OrderID        string       `json:"order_id"`
	Position       GeoPoint     `json:"position"`
	DistanceMeters float64      `json:"distance_meters"` // 距上一步的距离
	TravelMinutes  int          `json:"travel_minutes"`  // 距上一步的耗时
}

// Pair 全局分派的候选（骑手, 订单）组合
type Pair struct {
	RiderID     string   `json:"rider_id"`
	OrderID     string   `json:"order_id"`
	CostMinutes int      `json:"cost_minutes"`
	Waypoint    GeoPoint `json:"waypoint"`
}
