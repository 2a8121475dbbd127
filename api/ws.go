package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla_websocket "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/websocket"
)

var upgrader = gorilla_websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证Origin
	},
}

// handleWebSocket WebSocket连接端点。
// role=rider 的连接上报位置（需带 rider_id），role=console 的连接
// 通过 subscribe 消息按骑手订阅位置流。
// GET /v1/ws?role=rider&rider_id=r1
// GET /v1/ws?role=console
func (server *Server) handleWebSocket(ctx *gin.Context) {
	if server.wsHub == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(errors.New("realtime channel is not available")))
		return
	}

	var info websocket.ClientInfo
	switch ctx.Query("role") {
	case "rider":
		riderID := ctx.Query("rider_id")
		if riderID == "" {
			ctx.JSON(http.StatusBadRequest, errorResponse(errors.New("rider_id is required for rider connections")))
			return
		}
		info = websocket.ClientInfo{
			ClientType: websocket.ClientTypeRider,
			RiderID:    riderID,
		}
	case "console", "":
		info = websocket.ClientInfo{
			ClientType: websocket.ClientTypeConsole,
			ConsoleID:  uuid.New().String(),
		}
	default:
		ctx.JSON(http.StatusBadRequest, errorResponse(errors.New("role must be rider or console")))
		return
	}

	// 升级到WebSocket
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// 创建客户端并注册
	client := websocket.NewClient(server.wsHub, conn, info)
	server.wsHub.Register(client)
	UpdateWSMetrics(server.wsHub.ConnectionCounts())

	// 启动读写协程
	go client.WritePump()
	go func() {
		// ReadPump 退出即连接关闭，刷新连接数指标
		client.ReadPump()
		UpdateWSMetrics(server.wsHub.ConnectionCounts())
	}()
}
