package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAssignOrdersCapacityOne(t *testing.T) {
	now := time.Now()

	// 两名骑手各限一单，三单中成本最低的两个组合成交，第三单落空
	riders := []RiderPosition{
		{RiderID: "r1", Position: GeoPoint{Lat: 31.2300, Lng: 121.4700}},
		{RiderID: "r2", Position: GeoPoint{Lat: 31.2400, Lng: 121.4800}},
	}
	orders := []Order{
		// o1 紧邻 r1
		testOrder("o1", StatusPending,
			GeoPoint{Lat: 31.2302, Lng: 121.4702}, GeoPoint{Lat: 31.2310, Lng: 121.4710},
			now.Add(30*time.Minute)),
		// o2 紧邻 r2
		testOrder("o2", StatusPending,
			GeoPoint{Lat: 31.2402, Lng: 121.4802}, GeoPoint{Lat: 31.2410, Lng: 121.4810},
			now.Add(30*time.Minute)),
		// o3 离 r1 不远，但两人都已满载
		testOrder("o3", StatusPending,
			GeoPoint{Lat: 31.2320, Lng: 121.4720}, GeoPoint{Lat: 31.2330, Lng: 121.4730},
			now.Add(30*time.Minute)),
	}

	cfg := DefaultAssignConfig()
	cfg.CapacityPerRider = 1
	result := AssignOrders(context.Background(), riders, orders, cfg)

	require.Equal(t, []string{"o1"}, result.Orders["r1"])
	require.Equal(t, []string{"o2"}, result.Orders["r2"])
	// 两人都满载后即使存在更优的换单方案也不回退
	require.Equal(t, []string{"o3"}, result.Unassigned)

	// 每名有单骑手都有配套路线
	require.Len(t, result.Routes["r1"], 2)
	require.Len(t, result.Routes["r2"], 2)
	require.Equal(t, WaypointMerchant, result.Routes["r1"][0].Kind)
	require.Equal(t, WaypointCustomer, result.Routes["r1"][1].Kind)
}

func TestAssignOrdersRespectsCapacity(t *testing.T) {
	now := time.Now()
	riders := []RiderPosition{
		{RiderID: "r1", Position: GeoPoint{Lat: 31.2300, Lng: 121.4700}},
	}
	var orders []Order
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		orders = append(orders, testOrder(id, StatusPending,
			GeoPoint{Lat: 31.2305, Lng: 121.4705}, GeoPoint{Lat: 31.2310, Lng: 121.4710},
			now.Add(30*time.Minute)))
	}

	cfg := DefaultAssignConfig()
	cfg.CapacityPerRider = 3
	result := AssignOrders(context.Background(), riders, orders, cfg)
	require.Len(t, result.Orders["r1"], 3)
	require.Len(t, result.Unassigned, 2)
}

func TestAssignOrdersSkipsTerminalOrders(t *testing.T) {
	now := time.Now()
	riders := []RiderPosition{
		{RiderID: "r1", Position: GeoPoint{Lat: 31.2300, Lng: 121.4700}},
	}
	near := GeoPoint{Lat: 31.2305, Lng: 121.4705}
	orders := []Order{
		testOrder("done", StatusCompleted, near, near, now),
		testOrder("live", StatusPending, near, near, now.Add(30*time.Minute)),
	}

	result := AssignOrders(context.Background(), riders, orders, DefaultAssignConfig())
	require.Equal(t, []string{"live"}, result.Orders["r1"])
	require.Empty(t, result.Unassigned)
}

func TestAssignOrdersNoRiders(t *testing.T) {
	now := time.Now()
	near := GeoPoint{Lat: 31.2305, Lng: 121.4705}
	orders := []Order{
		testOrder("o1", StatusPending, near, near, now.Add(30*time.Minute)),
	}

	result := AssignOrders(context.Background(), nil, orders, DefaultAssignConfig())
	require.Empty(t, result.Orders)
	require.Equal(t, []string{"o1"}, result.Unassigned)
}

func TestAssignOrdersExternalETA(t *testing.T) {
	now := time.Now()
	riders := []RiderPosition{
		{RiderID: "r1", Position: GeoPoint{Lat: 31.2300, Lng: 121.4700}},
		{RiderID: "r2", Position: GeoPoint{Lat: 31.2303, Lng: 121.4703}},
	}
	orders := []Order{
		testOrder("o1", StatusPending,
			GeoPoint{Lat: 31.2305, Lng: 121.4705}, GeoPoint{Lat: 31.2310, Lng: 121.4710},
			now.Add(30*time.Minute)),
	}

	// 外部耗时把 r1 的成本抬高，r2 成交
	eta := func(ctx context.Context, from, to GeoPoint) (int, bool) {
		if from == riders[0].Position {
			return 25, true
		}
		return 2, true
	}
	cfg := DefaultAssignConfig()
	cfg.CapacityPerRider = 1
	cfg.ETA = eta
	result := AssignOrders(context.Background(), riders, orders, cfg)
	require.Empty(t, result.Orders["r1"])
	require.Equal(t, []string{"o1"}, result.Orders["r2"])
}

func TestAssignOrdersETALookupBudget(t *testing.T) {
	now := time.Now()
	riders := []RiderPosition{
		{RiderID: "r1", Position: GeoPoint{Lat: 31.2300, Lng: 121.4700}},
	}
	var orders []Order
	for i, id := range []string{"a", "b", "c", "d"} {
		orders = append(orders, testOrder(id, StatusPending,
			GeoPoint{Lat: 31.2305 + float64(i)*0.001, Lng: 121.4705}, GeoPoint{Lat: 31.2400, Lng: 121.4800},
			now.Add(30*time.Minute)))
	}

	// 每骑手只允许 2 次精确查询，其余用球面估算
	calls := 0
	cfg := DefaultAssignConfig()
	cfg.ETALookupLimit = 2
	cfg.ETA = func(ctx context.Context, from, to GeoPoint) (int, bool) {
		calls++
		return 5, true
	}
	AssignOrders(context.Background(), riders, orders, cfg)
	require.Equal(t, 2, calls)
}
