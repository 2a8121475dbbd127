package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
)

func newTestHub(t *testing.T) (*Hub, *tracking.Store) {
	t.Helper()
	store := tracking.NewStore()
	hub := NewHub(context.Background(), store)
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	return hub, store
}

func newRiderClient(hub *Hub, riderID string) *Client {
	// 无实际连接，用于测试
	return &Client{
		info: ClientInfo{ClientType: ClientTypeRider, RiderID: riderID},
		hub:  hub,
		send: make(chan Message, 256),
		done: make(chan struct{}),
	}
}

func newConsoleClient(hub *Hub, consoleID string) *Client {
	return &Client{
		info: ClientInfo{ClientType: ClientTypeConsole, ConsoleID: consoleID},
		hub:  hub,
		send: make(chan Message, 256),
		done: make(chan struct{}),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(context.Background(), tracking.NewStore())

	require.NotNil(t, hub)
	require.NotNil(t, hub.riders)
	require.NotNil(t, hub.watchers)
	require.NotNil(t, hub.register)
	require.NotNil(t, hub.unregister)
	require.NotNil(t, hub.broadcast)
}

func TestHub_RegisterAndUnregisterRider(t *testing.T) {
	hub, _ := newTestHub(t)

	client := newRiderClient(hub, "r100")
	hub.Register(client)
	time.Sleep(50 * time.Millisecond) // 等待处理

	require.True(t, hub.IsRiderOnline("r100"))
	require.Equal(t, 1, hub.OnlineRiderCount())

	hub.Unregister(client)
	time.Sleep(50 * time.Millisecond)

	require.False(t, hub.IsRiderOnline("r100"))
	require.Equal(t, 0, hub.OnlineRiderCount())
}

func TestHub_ReplaceOldConnection(t *testing.T) {
	hub, _ := newTestHub(t)

	oldClient := newRiderClient(hub, "r100")
	hub.Register(oldClient)
	time.Sleep(50 * time.Millisecond)
	require.True(t, hub.IsRiderOnline("r100"))

	// 同一骑手重连
	newClient := newRiderClient(hub, "r100")
	hub.Register(newClient)
	time.Sleep(50 * time.Millisecond)

	// 旧连接应该被关闭
	select {
	case <-oldClient.done:
		// 预期行为
	default:
		t.Error("old client's done channel should be closed")
	}

	require.True(t, hub.IsRiderOnline("r100"))
	require.Equal(t, 1, hub.OnlineRiderCount())
}

func TestHub_UnregisterWrongClient(t *testing.T) {
	// 旧连接注销时不应删除新连接
	hub, _ := newTestHub(t)

	oldClient := newRiderClient(hub, "r100")
	hub.Register(oldClient)
	time.Sleep(50 * time.Millisecond)

	newClient := newRiderClient(hub, "r100")
	hub.Register(newClient)
	time.Sleep(50 * time.Millisecond)

	hub.Unregister(oldClient)
	time.Sleep(50 * time.Millisecond)

	require.True(t, hub.IsRiderOnline("r100"))
	require.Equal(t, 1, hub.OnlineRiderCount())
}

func TestHub_PositionDeliveredToWatcher(t *testing.T) {
	hub, store := newTestHub(t)

	console := newConsoleClient(hub, "c1")
	hub.Register(console)
	time.Sleep(50 * time.Millisecond)

	hub.Watch(console, "r100")
	require.Equal(t, 1, hub.WatcherCount("r100"))

	hub.HandlePosition("r100", dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})
	time.Sleep(50 * time.Millisecond)

	// 位置先落地到存储
	current, ok := store.Current("r100")
	require.True(t, ok)
	require.Equal(t, 31.23, current.Position.Lat)

	// 再推送给订阅者
	select {
	case msg := <-console.send:
		require.Equal(t, "position", msg.Type)
		var data PositionData
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		require.Equal(t, "r100", data.RiderID)
		require.Equal(t, 31.23, data.Lat)
		require.Equal(t, 121.47, data.Lng)
	case <-time.After(100 * time.Millisecond):
		t.Error("expected to receive position message")
	}
}

func TestHub_ResubscribeSwitchesRider(t *testing.T) {
	hub, _ := newTestHub(t)

	console := newConsoleClient(hub, "c1")
	hub.Register(console)
	time.Sleep(50 * time.Millisecond)

	hub.Watch(console, "r100")
	hub.Watch(console, "r200")
	require.Equal(t, 0, hub.WatcherCount("r100"))
	require.Equal(t, 1, hub.WatcherCount("r200"))

	// 原骑手的位置不再推送
	hub.HandlePosition("r100", dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})
	time.Sleep(50 * time.Millisecond)
	select {
	case <-console.send:
		t.Error("console should not receive positions for unwatched rider")
	case <-time.After(50 * time.Millisecond):
		// 预期行为
	}

	hub.HandlePosition("r200", dispatch.GeoPoint{Lat: 31.24, Lng: 121.48})
	time.Sleep(50 * time.Millisecond)
	select {
	case msg := <-console.send:
		var data PositionData
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		require.Equal(t, "r200", data.RiderID)
	case <-time.After(100 * time.Millisecond):
		t.Error("expected position for watched rider")
	}
}

func TestHub_UnwatchStopsDelivery(t *testing.T) {
	hub, _ := newTestHub(t)

	console := newConsoleClient(hub, "c1")
	hub.Register(console)
	time.Sleep(50 * time.Millisecond)

	hub.Watch(console, "r100")
	hub.Unwatch(console)
	require.Equal(t, 0, hub.WatcherCount("r100"))

	hub.HandlePosition("r100", dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})
	time.Sleep(50 * time.Millisecond)
	select {
	case <-console.send:
		t.Error("console should not receive positions after unsubscribe")
	case <-time.After(50 * time.Millisecond):
		// 预期行为
	}
}

func TestHub_ConsoleDisconnectCleansWatch(t *testing.T) {
	hub, _ := newTestHub(t)

	console := newConsoleClient(hub, "c1")
	hub.Register(console)
	time.Sleep(50 * time.Millisecond)
	hub.Watch(console, "r100")

	hub.Unregister(console)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, hub.WatcherCount("r100"))
}

func TestHub_PositionStoredWithoutWatchers(t *testing.T) {
	// 没有订阅者时位置照常落地
	hub, store := newTestHub(t)

	hub.HandlePosition("r100", dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})
	time.Sleep(50 * time.Millisecond)

	current, ok := store.Current("r100")
	require.True(t, ok)
	require.Equal(t, 121.47, current.Position.Lng)
	require.Len(t, store.Trace("r100"), 1)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub, _ := newTestHub(t)

	var wg sync.WaitGroup
	const numGoroutines = 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			riderID := string(rune('a' + id%26))
			client := newRiderClient(hub, riderID)
			hub.Register(client)
			hub.HandlePosition(riderID, dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})
			_ = hub.IsRiderOnline(riderID)
			_ = hub.OnlineRiderCount()
			hub.Unregister(client)
		}(i)
	}

	wg.Wait()
}

func TestHub_Shutdown(t *testing.T) {
	store := tracking.NewStore()
	hub := NewHub(context.Background(), store)
	go hub.Run()

	client := newRiderClient(hub, "r100")
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	hub.Shutdown()
	time.Sleep(50 * time.Millisecond)

	// send channel 应该被关闭
	_, ok := <-client.send
	require.False(t, ok, "send channel should be closed after shutdown")
}
