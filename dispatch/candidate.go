package dispatch

import (
	"math"
	"sort"
	"time"
)

// SortMode 候选排序方式
type SortMode string

const (
	SortByUrgency  SortMode = "urgency"  // 紧急度升序（最紧急在前）
	SortByDistance SortMode = "distance" // 距离升序
)

// SiteAll 站点过滤通配：空串与 "all" 均不过滤
const SiteAll = "all"

// ScoreConfig 候选评分配置
type ScoreConfig struct {
	Site              string         `json:"site"`                // 站点过滤，空或 all 表示全部
	MaxDistanceMeters float64        `json:"max_distance_meters"` // 超出则剔除
	SpeedKmh          float64        `json:"speed_kmh"`
	Sort              SortMode       `json:"sort"`
	Now               time.Time      `json:"-"`              // 零值取 time.Now
	TravelMinutes     map[string]int `json:"travel_minutes"` // 外部耗时覆盖，键为订单号
}

// DefaultScoreConfig 默认评分配置
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		MaxDistanceMeters: 3000,
		SpeedKmh:          18,
		Sort:              SortByUrgency,
	}
}

// ScoreCandidates 为一名骑手从订单池中筛选并评分候选订单。
//
// 过滤规则：终态订单（已完成/已取消）剔除；站点不匹配剔除；
// 到下一途经点的距离超过 MaxDistanceMeters 剔除。
// 紧急度 = 剩余送达分钟数 - 赶路分钟数，越小越该先处理。
// 排序使用稳定排序，等值时保持池内原始顺序，结果可复现。
func ScoreCandidates(pool []Order, origin GeoPoint, cfg ScoreConfig) []CandidateScore {
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 18
	}
	if cfg.MaxDistanceMeters <= 0 {
		cfg.MaxDistanceMeters = 3000
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	scored := make([]CandidateScore, 0, len(pool))
	for _, order := range pool {
		if !order.Dispatchable() {
			continue
		}
		if !siteMatches(cfg.Site, order.Site) {
			continue
		}

		waypoint, kind := order.NextWaypoint()
		dist := DistanceMeters(origin, waypoint)
		if dist > cfg.MaxDistanceMeters {
			continue
		}

		travelMin := EstimateTravelMinutes(dist, cfg.SpeedKmh)
		if external, ok := cfg.TravelMinutes[order.ID]; ok {
			travelMin = external
		}
		etaLeft := int(math.Round(order.ETA.Sub(now).Minutes()))

		scored = append(scored, CandidateScore{
			Order:          order,
			Kind:           kind,
			Waypoint:       waypoint,
			DistanceMeters: dist,
			TravelMinutes:  travelMin,
			ETAMinutesLeft: etaLeft,
			Urgency:        etaLeft - travelMin,
		})
	}

	switch cfg.Sort {
	case SortByDistance:
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].DistanceMeters < scored[j].DistanceMeters
		})
	default:
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Urgency < scored[j].Urgency
		})
	}

	return scored
}

func siteMatches(filter, site string) bool {
	return filter == "" || filter == SiteAll || filter == site
}
