package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
)

type riderSnapshot struct {
	dispatch.Rider
	Online   bool                 `json:"online"` // 是否有 WebSocket 连接
	Position *tracking.TracePoint `json:"position,omitempty"`
}

// listRiders 骑手档案快照，带当前位置与连接状态
// GET /v1/riders
func (server *Server) listRiders(ctx *gin.Context) {
	riders, err := server.store.ListRiders(ctx)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	snapshots := make([]riderSnapshot, 0, len(riders))
	for _, rider := range riders {
		snapshot := riderSnapshot{Rider: rider}
		if point, ok := server.traces.Current(rider.ID); ok {
			p := point
			snapshot.Position = &p
		}
		if server.wsHub != nil {
			snapshot.Online = server.wsHub.IsRiderOnline(rider.ID)
		}
		snapshots = append(snapshots, snapshot)
	}

	ctx.JSON(http.StatusOK, gin.H{"riders": snapshots})
}

// getRiderPosition 骑手当前位置
// GET /v1/riders/:id/position
func (server *Server) getRiderPosition(ctx *gin.Context) {
	riderID := ctx.Param("id")

	point, ok := server.traces.Current(riderID)
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse(errors.New("rider position unknown")))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"rider_id": riderID, "position": point})
}

type updateRiderPositionRequest struct {
	// 指针以区分缺省与赤道/本初子午线上的合法 0 值
	Lat *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

// updateRiderPosition 骑手上报位置。时间戳由服务端记录，后到覆盖先到。
// POST /v1/riders/:id/position
func (server *Server) updateRiderPosition(ctx *gin.Context) {
	riderID := ctx.Param("id")

	var req updateRiderPositionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	position := dispatch.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}

	// 经 Hub 落地并推送给该骑手的订阅者；Hub 缺席时直接落地
	if server.wsHub != nil {
		server.wsHub.HandlePosition(riderID, position)
	} else {
		server.traces.SetCurrent(riderID, position)
	}
	RecordPositionUpdate()

	point, _ := server.traces.Current(riderID)
	ctx.JSON(http.StatusOK, gin.H{"rider_id": riderID, "position": point})
}

type locateRiderResponse struct {
	RiderID        string            `json:"rider_id"`
	Located        bool              `json:"located"`
	Position       dispatch.GeoPoint `json:"position,omitempty"`
	AccuracyMeters float64           `json:"accuracy_meters,omitempty"`
	City           string            `json:"city,omitempty"`
}

// locateRider IP 粗定位兜底：按请求来源 IP 估计骑手位置。
// 定位失败不报错也不更新位置，返回 located=false。
// POST /v1/riders/:id/locate
func (server *Server) locateRider(ctx *gin.Context) {
	riderID := ctx.Param("id")

	if server.mapClient == nil {
		ctx.JSON(http.StatusOK, locateRiderResponse{RiderID: riderID, Located: false})
		return
	}

	result, err := server.mapClient.LocateIP(ctx, ctx.ClientIP())
	if err != nil {
		log.Warn().Err(err).Str("rider_id", riderID).Msg("IP locate failed")
		ctx.JSON(http.StatusOK, locateRiderResponse{RiderID: riderID, Located: false})
		return
	}

	position := dispatch.GeoPoint{Lat: result.Location.Lat, Lng: result.Location.Lng}
	if server.wsHub != nil {
		server.wsHub.HandlePosition(riderID, position)
	} else {
		server.traces.SetCurrent(riderID, position)
	}

	ctx.JSON(http.StatusOK, locateRiderResponse{
		RiderID:        riderID,
		Located:        true,
		Position:       position,
		AccuracyMeters: result.AccuracyMeters,
		City:           result.City,
	})
}

// getRiderTrace 骑手移动轨迹（时间升序，最多保留最近 200 个点）
// GET /v1/riders/:id/trace
func (server *Server) getRiderTrace(ctx *gin.Context) {
	riderID := ctx.Param("id")
	trace := server.traces.Trace(riderID)
	ctx.JSON(http.StatusOK, gin.H{"rider_id": riderID, "trace": trace})
}

// clearRiderTrace 清空轨迹但保留当前位置
// DELETE /v1/riders/:id/trace
func (server *Server) clearRiderTrace(ctx *gin.Context) {
	riderID := ctx.Param("id")
	server.traces.ClearTrace(riderID)
	ctx.JSON(http.StatusOK, MessageResponse{Message: "trace cleared"})
}
