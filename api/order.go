package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type listOrdersRequest struct {
	Site string `form:"site"`
}

// listOrders 当日订单池快照（调度台展示用，不做状态过滤）
// GET /v1/orders
func (server *Server) listOrders(ctx *gin.Context) {
	var req listOrdersRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	orders, err := server.listOrderPool(ctx, req.Site)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"orders": orders})
}
