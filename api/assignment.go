package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
)

type assignmentQuery struct {
	RiderID string `form:"rider_id" binding:"required"`
	Date    string `form:"date" binding:"omitempty,dispatchDate"`
}

type assignmentResponse struct {
	RiderID  string   `json:"rider_id"`
	Date     string   `json:"date"`
	OrderIDs []string `json:"order_ids"`
}

// getAssignment 读取某骑手某日的派单方案，不存在返回空列表
// GET /v1/assignments
func (server *Server) getAssignment(ctx *gin.Context) {
	var req assignmentQuery
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	date := req.Date
	if date == "" {
		date = assignments.DateKey(time.Now())
	}

	orderIDs, err := server.assignStore.Get(ctx, req.RiderID, date)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	if orderIDs == nil {
		orderIDs = []string{}
	}
	ctx.JSON(http.StatusOK, assignmentResponse{
		RiderID:  req.RiderID,
		Date:     date,
		OrderIDs: orderIDs,
	})
}

type putAssignmentRequest struct {
	RiderID  string   `json:"rider_id" binding:"required"`
	Date     string   `json:"date" binding:"omitempty,dispatchDate"`
	OrderIDs []string `json:"order_ids" binding:"required"`
}

// putAssignment 整体覆盖某骑手某日的派单方案，订单号按首次出现去重
// PUT /v1/assignments
func (server *Server) putAssignment(ctx *gin.Context) {
	var req putAssignmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	date := req.Date
	if date == "" {
		date = assignments.DateKey(time.Now())
	}

	if err := server.assignStore.Save(ctx, req.RiderID, date, req.OrderIDs); err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	orderIDs, err := server.assignStore.Get(ctx, req.RiderID, date)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}
	ctx.JSON(http.StatusOK, assignmentResponse{
		RiderID:  req.RiderID,
		Date:     date,
		OrderIDs: orderIDs,
	})
}

// deleteAssignment 删除某骑手某日的派单方案，不存在也视为成功
// DELETE /v1/assignments
func (server *Server) deleteAssignment(ctx *gin.Context) {
	var req assignmentQuery
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	date := req.Date
	if date == "" {
		date = assignments.DateKey(time.Now())
	}

	if err := server.assignStore.Clear(ctx, req.RiderID, date); err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	ctx.JSON(http.StatusOK, MessageResponse{Message: "assignment cleared"})
}
