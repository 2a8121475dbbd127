package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
)

// fakeStore 供测试的订单池
type fakeStore struct {
	orders []dispatch.Order
	riders []dispatch.Rider
}

func (f *fakeStore) ListOrders(ctx context.Context) ([]dispatch.Order, error) {
	return f.orders, nil
}

func (f *fakeStore) ListOrdersBySite(ctx context.Context, site string) ([]dispatch.Order, error) {
	var out []dispatch.Order
	for _, o := range f.orders {
		if o.Site == site {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (dispatch.Order, error) {
	for _, o := range f.orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return dispatch.Order{}, nil
}

func (f *fakeStore) ListRiders(ctx context.Context) ([]dispatch.Rider, error) {
	return f.riders, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close()                         {}

func TestProcessTaskGlobalDispatch(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		orders: []dispatch.Order{
			{
				ID: "o1", Status: dispatch.StatusPending,
				Merchant: dispatch.GeoPoint{Lat: 31.2302, Lng: 121.4702},
				Customer: dispatch.GeoPoint{Lat: 31.2310, Lng: 121.4710},
				ETA:      now.Add(30 * time.Minute),
			},
			{
				ID: "o2", Status: dispatch.StatusPending,
				Merchant: dispatch.GeoPoint{Lat: 31.2402, Lng: 121.4802},
				Customer: dispatch.GeoPoint{Lat: 31.2410, Lng: 121.4810},
				ETA:      now.Add(30 * time.Minute),
			},
		},
	}

	traces := tracking.NewStore()
	traces.SetCurrent("r1", dispatch.GeoPoint{Lat: 31.2300, Lng: 121.4700})
	traces.SetCurrent("r2", dispatch.GeoPoint{Lat: 31.2400, Lng: 121.4800})

	assignStore := assignments.NewMemoryStore()
	processor := NewTestTaskProcessor(store, traces, assignStore, nil, dispatch.DefaultAssignConfig())

	payload := &GlobalDispatchPayload{
		BatchID:          "test-batch",
		Date:             "2026-08-30",
		CapacityPerRider: 1,
		SpeedKmh:         18,
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	task := asynq.NewTask(TaskGlobalDispatch, data)
	require.NoError(t, processor.ProcessTaskGlobalDispatch(context.Background(), task))

	// 每个骑手分到最近的一单并已落库
	r1Orders, err := assignStore.Get(context.Background(), "r1", "2026-08-30")
	require.NoError(t, err)
	require.Equal(t, []string{"o1"}, r1Orders)

	r2Orders, err := assignStore.Get(context.Background(), "r2", "2026-08-30")
	require.NoError(t, err)
	require.Equal(t, []string{"o2"}, r2Orders)
}

func TestProcessTaskGlobalDispatchSiteFilter(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		orders: []dispatch.Order{
			{
				ID: "east1", Status: dispatch.StatusPending, Site: "east",
				Merchant: dispatch.GeoPoint{Lat: 31.2302, Lng: 121.4702},
				Customer: dispatch.GeoPoint{Lat: 31.2310, Lng: 121.4710},
				ETA:      now.Add(30 * time.Minute),
			},
			{
				ID: "west1", Status: dispatch.StatusPending, Site: "west",
				Merchant: dispatch.GeoPoint{Lat: 31.2302, Lng: 121.4702},
				Customer: dispatch.GeoPoint{Lat: 31.2310, Lng: 121.4710},
				ETA:      now.Add(30 * time.Minute),
			},
		},
	}

	traces := tracking.NewStore()
	traces.SetCurrent("r1", dispatch.GeoPoint{Lat: 31.2300, Lng: 121.4700})

	assignStore := assignments.NewMemoryStore()
	processor := NewTestTaskProcessor(store, traces, assignStore, nil, dispatch.DefaultAssignConfig())

	payload := &GlobalDispatchPayload{
		BatchID: "test-batch",
		Site:    "east",
		Date:    "2026-08-30",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	task := asynq.NewTask(TaskGlobalDispatch, data)
	require.NoError(t, processor.ProcessTaskGlobalDispatch(context.Background(), task))

	r1Orders, err := assignStore.Get(context.Background(), "r1", "2026-08-30")
	require.NoError(t, err)
	require.Equal(t, []string{"east1"}, r1Orders)
}

func TestProcessTaskGlobalDispatchBadPayload(t *testing.T) {
	processor := NewTestTaskProcessor(&fakeStore{}, tracking.NewStore(),
		assignments.NewMemoryStore(), nil, dispatch.DefaultAssignConfig())

	task := asynq.NewTask(TaskGlobalDispatch, []byte("not-json"))
	require.Error(t, processor.ProcessTaskGlobalDispatch(context.Background(), task))
}

func TestNewGlobalDispatchPayloadHasBatchID(t *testing.T) {
	payload := NewGlobalDispatchPayload("east", 3, 18, true)
	require.NotEmpty(t, payload.BatchID)
	require.Equal(t, "east", payload.Site)
	require.Equal(t, 3, payload.CapacityPerRider)
	require.True(t, payload.UseDrivingETA)
}
