package dispatch

import "math"

const (
	// 地球半径（米）
	earthRadius = 6371000
)

// DistanceMeters 计算两点间的球面距离（米）
// 使用 Haversine 公式
func DistanceMeters(a, b GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// EstimateTravelMinutes 按平均速度估算骑行时间（分钟，四舍五入）。
// 速度下限 1km/h，避免除零和负速度。
func EstimateTravelMinutes(meters, speedKmh float64) int {
	km := meters / 1000
	hours := km / math.Max(1, speedKmh)
	return int(math.Round(hours * 60))
}

// toRadians 角度转弧度
func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
