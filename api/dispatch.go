package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/db"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/maps"
	"github.com/xiumouer/waimai-ops-intelligence/worker"
)

// defaultPlanTopN 未指定候选数量时规划的订单数
const defaultPlanTopN = 3

type getDispatchCandidatesRequest struct {
	RiderID     string  `form:"rider_id" binding:"required"`
	Site        string  `form:"site"`
	Sort        string  `form:"sort" binding:"omitempty,oneof=urgency distance"`
	MaxDistance float64 `form:"max_distance"`
	SpeedKmh    float64 `form:"speed_kmh"`
}

type getDispatchCandidatesResponse struct {
	RiderID    string                    `json:"rider_id"`
	Origin     dispatch.GeoPoint         `json:"origin"`
	Candidates []dispatch.CandidateScore `json:"candidates"`
}

// getDispatchCandidates 为一名骑手返回按紧急度（或距离）排序的候选订单。
// 已缓存的驾车耗时会覆盖对应订单的球面估算，但不触发实时查询。
// GET /v1/dispatch/candidates
func (server *Server) getDispatchCandidates(ctx *gin.Context) {
	var req getDispatchCandidatesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	current, ok := server.traces.Current(req.RiderID)
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse(errors.New("rider position unknown, report a position first")))
		return
	}
	origin := current.Position

	pool, err := server.store.ListOrders(ctx)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	cfg := dispatch.DefaultScoreConfig()
	cfg.Site = req.Site
	cfg.Sort = dispatch.SortMode(req.Sort)
	cfg.MaxDistanceMeters = server.config.DispatchMaxDistanceMeters
	cfg.SpeedKmh = server.config.DispatchSpeedKmh
	if req.MaxDistance > 0 {
		cfg.MaxDistanceMeters = req.MaxDistance
	}
	if req.SpeedKmh > 0 {
		cfg.SpeedKmh = req.SpeedKmh
	}
	cfg.TravelMinutes = server.cachedTravelMinutes(origin, pool)

	candidates := dispatch.ScoreCandidates(pool, origin, cfg)

	ctx.JSON(http.StatusOK, getDispatchCandidatesResponse{
		RiderID:    req.RiderID,
		Origin:     origin,
		Candidates: candidates,
	})
}

// cachedTravelMinutes 从驾车耗时缓存为订单池构造耗时覆盖表，只读缓存不发请求
func (server *Server) cachedTravelMinutes(origin dispatch.GeoPoint, pool []dispatch.Order) map[string]int {
	if server.eta == nil {
		return nil
	}
	overrides := make(map[string]int)
	from := maps.Location{Lat: origin.Lat, Lng: origin.Lng}
	for _, order := range pool {
		waypoint, _ := order.NextWaypoint()
		to := maps.Location{Lat: waypoint.Lat, Lng: waypoint.Lng}
		if minutes, ok := server.eta.Cached(from, to); ok {
			overrides[order.ID] = minutes
		}
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

type planDispatchRouteRequest struct {
	RiderID  string   `json:"rider_id" binding:"required"`
	OrderIDs []string `json:"order_ids"` // 指定则按给定订单规划，否则取最紧急的 top_n 单
	TopN     int      `json:"top_n"`
	Site     string   `json:"site"`
	SpeedKmh float64  `json:"speed_kmh"`
	Refine   bool     `json:"refine"` // 使用驾车ETA顺序精修每步耗时
}

type planDispatchRouteResponse struct {
	RiderID      string              `json:"rider_id"`
	Origin       dispatch.GeoPoint   `json:"origin"`
	Steps        []dispatch.PlanStep `json:"steps"`
	TotalMeters  float64             `json:"total_meters"`
	TotalMinutes int                 `json:"total_minutes"`
	Refined      bool                `json:"refined"`
}

// planDispatchRoute 为一名骑手规划多点取送路线。
// POST /v1/dispatch/plan
func (server *Server) planDispatchRoute(ctx *gin.Context) {
	var req planDispatchRouteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	current, ok := server.traces.Current(req.RiderID)
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse(errors.New("rider position unknown, report a position first")))
		return
	}
	origin := current.Position

	speedKmh := server.config.DispatchSpeedKmh
	if req.SpeedKmh > 0 {
		speedKmh = req.SpeedKmh
	}

	orders, err := server.collectPlanOrders(ctx, &req, origin, speedKmh)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse(err))
		} else {
			ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		}
		return
	}

	steps := dispatch.PlanRoute(origin, orders, speedKmh)

	// 精修是尽力而为：代次落后或查询失败就用原估算路线
	refined := false
	if req.Refine && server.geoETA != nil && len(steps) > 0 {
		refiner := server.riderRefiner(req.RiderID)
		gen := refiner.Invalidate()
		if refinedSteps, ok := refiner.Refine(ctx, gen, origin, steps, server.geoETA.TravelMinutes); ok {
			steps = refinedSteps
			refined = true
		}
	}

	RecordRoutePlan()

	totalMeters, totalMinutes := dispatch.RouteTotals(steps)
	ctx.JSON(http.StatusOK, planDispatchRouteResponse{
		RiderID:      req.RiderID,
		Origin:       origin,
		Steps:        steps,
		TotalMeters:  totalMeters,
		TotalMinutes: totalMinutes,
		Refined:      refined,
	})
}

// collectPlanOrders 确定参与规划的订单：显式指定的订单号，或候选排序的前 N 单
func (server *Server) collectPlanOrders(
	ctx *gin.Context,
	req *planDispatchRouteRequest,
	origin dispatch.GeoPoint,
	speedKmh float64,
) ([]dispatch.Order, error) {
	if len(req.OrderIDs) > 0 {
		orders := make([]dispatch.Order, 0, len(req.OrderIDs))
		for _, id := range req.OrderIDs {
			order, err := server.store.GetOrder(ctx, id)
			if err != nil {
				return nil, err
			}
			orders = append(orders, order)
		}
		return orders, nil
	}

	pool, err := server.store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	cfg := dispatch.DefaultScoreConfig()
	cfg.Site = req.Site
	cfg.SpeedKmh = speedKmh
	cfg.MaxDistanceMeters = server.config.DispatchMaxDistanceMeters
	candidates := dispatch.ScoreCandidates(pool, origin, cfg)

	topN := req.TopN
	if topN <= 0 {
		topN = defaultPlanTopN
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	orders := make([]dispatch.Order, 0, len(candidates))
	for _, candidate := range candidates {
		orders = append(orders, candidate.Order)
	}
	return orders, nil
}

type globalDispatchRequest struct {
	Site             string  `json:"site"`
	CapacityPerRider int     `json:"capacity_per_rider"`
	SpeedKmh         float64 `json:"speed_kmh"`
	UseDrivingETA    bool    `json:"use_driving_eta"`
	Persist          bool    `json:"persist"`
	Date             string  `json:"date" binding:"omitempty,dispatchDate"`
	Async            bool    `json:"async"` // 入队后台任务执行并落库
}

type globalDispatchResponse struct {
	dispatch.Assignment
	Persisted bool   `json:"persisted"`
	Date      string `json:"date,omitempty"`
}

// globalDispatch 车队级贪心派单：同步执行返回结果，或入队后台任务。
// POST /v1/dispatch/global
func (server *Server) globalDispatch(ctx *gin.Context) {
	var req globalDispatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	capacity := server.config.DispatchCapacityPerRider
	if req.CapacityPerRider > 0 {
		capacity = req.CapacityPerRider
	}
	speedKmh := server.config.DispatchSpeedKmh
	if req.SpeedKmh > 0 {
		speedKmh = req.SpeedKmh
	}

	if req.Async {
		if server.taskDistributor == nil {
			ctx.JSON(http.StatusServiceUnavailable, errorResponse(errors.New("background dispatch is not available")))
			return
		}
		payload := worker.NewGlobalDispatchPayload(req.Site, capacity, speedKmh, req.UseDrivingETA)
		payload.Date = req.Date
		if err := server.taskDistributor.DistributeTaskGlobalDispatch(ctx, payload); err != nil {
			ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
			return
		}
		RecordGlobalDispatch(true)
		ctx.JSON(http.StatusAccepted, gin.H{"batch_id": payload.BatchID})
		return
	}

	pool, err := server.listOrderPool(ctx, req.Site)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	cfg := dispatch.AssignConfig{
		CapacityPerRider: capacity,
		SpeedKmh:         speedKmh,
		ETALookupLimit:   server.config.DispatchETALookupLimit,
	}
	if req.UseDrivingETA && server.geoETA != nil {
		cfg.ETA = server.geoETA.TravelMinutes
	}

	result := dispatch.AssignOrders(ctx, server.traces.Positions(), pool, cfg)
	RecordGlobalDispatch(false)

	resp := globalDispatchResponse{Assignment: result}
	if req.Persist {
		date := req.Date
		if date == "" {
			date = assignments.DateKey(time.Now())
		}
		for riderID, orderIDs := range result.Orders {
			if len(orderIDs) == 0 {
				continue
			}
			if err := server.assignStore.Save(ctx, riderID, date, orderIDs); err != nil {
				ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
				return
			}
		}
		resp.Persisted = true
		resp.Date = date
	}

	ctx.JSON(http.StatusOK, resp)
}

// listOrderPool 按站点取订单池快照
func (server *Server) listOrderPool(ctx *gin.Context, site string) ([]dispatch.Order, error) {
	if site != "" && site != dispatch.SiteAll {
		return server.store.ListOrdersBySite(ctx, site)
	}
	return server.store.ListOrders(ctx)
}
