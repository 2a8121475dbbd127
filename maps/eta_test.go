package maps

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeMapClient 供测试的地图客户端
type fakeMapClient struct {
	calls    int
	duration int
	fail     bool
}

func (f *fakeMapClient) GetDrivingRoute(ctx context.Context, from, to Location) (*RouteResult, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("quota exceeded")
	}
	return &RouteResult{Distance: 1000, Duration: f.duration}, nil
}

func (f *fakeMapClient) LocateIP(ctx context.Context, ip string) (*IPLocation, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeMapClient) ReverseGeocode(ctx context.Context, location Location) (*ReverseGeocodeResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestDrivingETACaches(t *testing.T) {
	fake := &fakeMapClient{duration: 600}
	eta := NewDrivingETA(fake, 100, 10)

	from := Location{Lat: 31.23, Lng: 121.47}
	to := Location{Lat: 31.24, Lng: 121.48}

	minutes, ok := eta.TravelMinutes(context.Background(), from, to)
	require.True(t, ok)
	require.Equal(t, 10, minutes)
	require.Equal(t, 1, fake.calls)

	// 第二次命中缓存，不再请求
	minutes, ok = eta.TravelMinutes(context.Background(), from, to)
	require.True(t, ok)
	require.Equal(t, 10, minutes)
	require.Equal(t, 1, fake.calls)

	// 反方向是另一个键
	_, ok = eta.TravelMinutes(context.Background(), to, from)
	require.True(t, ok)
	require.Equal(t, 2, fake.calls)
	require.Equal(t, 2, eta.CacheSize())
}

func TestDrivingETAKeyRounding(t *testing.T) {
	fake := &fakeMapClient{duration: 300}
	eta := NewDrivingETA(fake, 100, 10)

	from := Location{Lat: 31.230001, Lng: 121.470001}
	to := Location{Lat: 31.24, Lng: 121.48}
	_, ok := eta.TravelMinutes(context.Background(), from, to)
	require.True(t, ok)

	// 第 6 位小数的差异落在同一个缓存键上
	nearby := Location{Lat: 31.230002, Lng: 121.470002}
	_, ok = eta.TravelMinutes(context.Background(), nearby, to)
	require.True(t, ok)
	require.Equal(t, 1, fake.calls)
}

func TestDrivingETAMinimumOneMinute(t *testing.T) {
	fake := &fakeMapClient{duration: 10} // 10 秒
	eta := NewDrivingETA(fake, 100, 10)

	minutes, ok := eta.TravelMinutes(context.Background(),
		Location{Lat: 31.23, Lng: 121.47}, Location{Lat: 31.2301, Lng: 121.4701})
	require.True(t, ok)
	require.Equal(t, 1, minutes)
}

func TestDrivingETAFailureNotOK(t *testing.T) {
	fake := &fakeMapClient{fail: true}
	eta := NewDrivingETA(fake, 100, 10)

	_, ok := eta.TravelMinutes(context.Background(),
		Location{Lat: 31.23, Lng: 121.47}, Location{Lat: 31.24, Lng: 121.48})
	require.False(t, ok)
	// 失败不写缓存
	require.Equal(t, 0, eta.CacheSize())
}

func TestDrivingETACachedProbe(t *testing.T) {
	fake := &fakeMapClient{duration: 600}
	eta := NewDrivingETA(fake, 100, 10)

	from := Location{Lat: 31.23, Lng: 121.47}
	to := Location{Lat: 31.24, Lng: 121.48}

	_, ok := eta.Cached(from, to)
	require.False(t, ok)

	_, _ = eta.TravelMinutes(context.Background(), from, to)
	minutes, ok := eta.Cached(from, to)
	require.True(t, ok)
	require.Equal(t, 10, minutes)
	// 只查缓存不触发请求
	require.Equal(t, 1, fake.calls)
}

func TestDrivingETACancelledContext(t *testing.T) {
	fake := &fakeMapClient{duration: 600}
	// 限流极低，取消的上下文在等待时失败
	eta := NewDrivingETA(fake, 0.001, 1)
	// 耗尽突发额度
	_, _ = eta.TravelMinutes(context.Background(),
		Location{Lat: 31.23, Lng: 121.47}, Location{Lat: 31.24, Lng: 121.48})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := eta.TravelMinutes(ctx,
		Location{Lat: 31.25, Lng: 121.49}, Location{Lat: 31.26, Lng: 121.50})
	require.False(t, ok)
}
