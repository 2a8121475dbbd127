package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

func TestGetDispatchCandidates(t *testing.T) {
	now := time.Now()
	origin := dispatch.GeoPoint{Lat: 31.2300, Lng: 121.4700}
	picked := now.Add(-5 * time.Minute)

	store := &fakeStore{
		orders: []dispatch.Order{
			// 距离近但还有 40 分钟，未取餐
			testOrder("slack", dispatch.GeoPoint{Lat: 31.2305, Lng: 121.4705},
				dispatch.GeoPoint{Lat: 31.2400, Lng: 121.4800}, now.Add(40*time.Minute)),
			// 已取餐、只剩 10 分钟，更紧急
			{
				ID: "urgent", Status: dispatch.StatusDelivering,
				Merchant: dispatch.GeoPoint{Lat: 31.2200, Lng: 121.4600},
				Customer: dispatch.GeoPoint{Lat: 31.2280, Lng: 121.4680},
				ETA:      now.Add(10 * time.Minute),
				PickedAt: &picked,
			},
		},
	}

	parts := newTestServer(t, store)
	parts.traces.SetCurrent("r1", origin)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/v1/dispatch/candidates?rider_id=r1", nil)
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp getDispatchCandidatesResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 2)
	// 紧急度升序：已取餐只剩 10 分钟的排在前
	require.Equal(t, "urgent", resp.Candidates[0].Order.ID)
	require.Equal(t, dispatch.WaypointCustomer, resp.Candidates[0].Kind)
	require.Equal(t, "slack", resp.Candidates[1].Order.ID)
}

func TestGetDispatchCandidatesUnknownRider(t *testing.T) {
	parts := newTestServer(t, &fakeStore{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/v1/dispatch/candidates?rider_id=ghost", nil)
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestPlanDispatchRoute(t *testing.T) {
	now := time.Now()
	origin := dispatch.GeoPoint{Lat: 31.2300, Lng: 121.4700}

	store := &fakeStore{
		orders: []dispatch.Order{
			testOrder("o1", dispatch.GeoPoint{Lat: 31.2305, Lng: 121.4705},
				dispatch.GeoPoint{Lat: 31.2310, Lng: 121.4710}, now.Add(30*time.Minute)),
			testOrder("o2", dispatch.GeoPoint{Lat: 31.2320, Lng: 121.4720},
				dispatch.GeoPoint{Lat: 31.2330, Lng: 121.4730}, now.Add(30*time.Minute)),
		},
	}

	parts := newTestServer(t, store)
	parts.traces.SetCurrent("r1", origin)

	body, err := json.Marshal(planDispatchRouteRequest{
		RiderID:  "r1",
		OrderIDs: []string{"o1", "o2"},
	})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/dispatch/plan", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp planDispatchRouteResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Steps, 4)
	require.False(t, resp.Refined)

	// 每个订单先取餐后送达
	picked := make(map[string]bool)
	for _, step := range resp.Steps {
		switch step.Kind {
		case dispatch.WaypointMerchant:
			picked[step.OrderID] = true
		case dispatch.WaypointCustomer:
			require.True(t, picked[step.OrderID], "order %s delivered before pickup", step.OrderID)
		}
	}
	require.Greater(t, resp.TotalMeters, 0.0)
}

func TestPlanDispatchRouteOrderNotFound(t *testing.T) {
	parts := newTestServer(t, &fakeStore{})
	parts.traces.SetCurrent("r1", dispatch.GeoPoint{Lat: 31.23, Lng: 121.47})

	body, err := json.Marshal(planDispatchRouteRequest{
		RiderID:  "r1",
		OrderIDs: []string{"missing"},
	})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/dispatch/plan", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGlobalDispatchInlinePersist(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		orders: []dispatch.Order{
			testOrder("o1", dispatch.GeoPoint{Lat: 31.2302, Lng: 121.4702},
				dispatch.GeoPoint{Lat: 31.2310, Lng: 121.4710}, now.Add(30*time.Minute)),
			testOrder("o2", dispatch.GeoPoint{Lat: 31.2402, Lng: 121.4802},
				dispatch.GeoPoint{Lat: 31.2410, Lng: 121.4810}, now.Add(30*time.Minute)),
		},
	}

	parts := newTestServer(t, store)
	parts.traces.SetCurrent("r1", dispatch.GeoPoint{Lat: 31.2300, Lng: 121.4700})
	parts.traces.SetCurrent("r2", dispatch.GeoPoint{Lat: 31.2400, Lng: 121.4800})

	body, err := json.Marshal(globalDispatchRequest{
		CapacityPerRider: 1,
		Persist:          true,
		Date:             "2026-08-30",
	})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/dispatch/global", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp globalDispatchResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.True(t, resp.Persisted)
	require.Equal(t, []string{"o1"}, resp.Orders["r1"])
	require.Equal(t, []string{"o2"}, resp.Orders["r2"])
	require.Empty(t, resp.Unassigned)

	// 已写入持久层
	saved, err := parts.assignStore.Get(context.Background(), "r1", "2026-08-30")
	require.NoError(t, err)
	require.Equal(t, []string{"o1"}, saved)
}

func TestGlobalDispatchAsyncUnavailable(t *testing.T) {
	parts := newTestServer(t, &fakeStore{})

	body, err := json.Marshal(globalDispatchRequest{Async: true})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/dispatch/global", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestGlobalDispatchBadDate(t *testing.T) {
	parts := newTestServer(t, &fakeStore{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/dispatch/global",
		bytes.NewReader([]byte(`{"date":"08/30/2026"}`)))
	request.Header.Set("Content-Type", "application/json")
	parts.server.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
