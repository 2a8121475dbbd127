package maps

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DrivingETA 带缓存与限流的驾车耗时查询。
//
// 缓存键按两端坐标各保留 5 位小数（约 1 米精度），区分方向。
// 缓存进程内常驻不淘汰，外部请求量由限流器约束。
// 任何失败（限流等待被取消、API 出错）都返回 ok=false，
// 由调用方回退到球面估算，绝不向上抛错。
type DrivingETA struct {
	client  Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]int
}

// NewDrivingETA 创建驾车耗时查询。qps 限制对高德的实际请求速率。
func NewDrivingETA(client Client, qps float64, burst int) *DrivingETA {
	if burst <= 0 {
		burst = 1
	}
	return &DrivingETA{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		cache:   make(map[string]int),
	}
}

// TravelMinutes 查询 from→to 的驾车分钟数（下限 1 分钟）
func (e *DrivingETA) TravelMinutes(ctx context.Context, from, to Location) (int, bool) {
	key := etaCacheKey(from, to)

	e.mu.Lock()
	if minutes, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return minutes, true
	}
	e.mu.Unlock()

	if err := e.limiter.Wait(ctx); err != nil {
		return 0, false
	}

	route, err := e.client.GetDrivingRoute(ctx, from, to)
	if err != nil {
		log.Debug().Err(err).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("driving route lookup failed, caller falls back to estimate")
		return 0, false
	}

	minutes := int(math.Round(float64(route.Duration) / 60))
	if minutes < 1 {
		minutes = 1
	}

	e.mu.Lock()
	e.cache[key] = minutes
	e.mu.Unlock()
	return minutes, true
}

// Cached 只查缓存，不触发外部请求
func (e *DrivingETA) Cached(from, to Location) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	minutes, ok := e.cache[etaCacheKey(from, to)]
	return minutes, ok
}

// CacheSize 当前缓存条目数
func (e *DrivingETA) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// etaCacheKey 方向敏感的缓存键，坐标保留 5 位小数
func etaCacheKey(from, to Location) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", from.Lng, from.Lat, to.Lng, to.Lat)
}
