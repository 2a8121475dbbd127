package maps

import (
	"context"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

// GeoETA 将 DrivingETA 适配为调度算法使用的坐标签名，
// 同时满足 dispatch.ETAFunc 与 worker 的耗时来源接口
type GeoETA struct {
	eta *DrivingETA
}

// NewGeoETA 创建坐标适配器
func NewGeoETA(eta *DrivingETA) *GeoETA {
	return &GeoETA{eta: eta}
}

// TravelMinutes 查询两点间驾车耗时（分钟）
func (g *GeoETA) TravelMinutes(ctx context.Context, from, to dispatch.GeoPoint) (int, bool) {
	return g.eta.TravelMinutes(ctx,
		Location{Lat: from.Lat, Lng: from.Lng},
		Location{Lat: to.Lat, Lng: to.Lng},
	)
}
