package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/assignments"
	"github.com/xiumouer/waimai-ops-intelligence/db"
	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/maps"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
	"github.com/xiumouer/waimai-ops-intelligence/util"
	"github.com/xiumouer/waimai-ops-intelligence/websocket"
	"github.com/xiumouer/waimai-ops-intelligence/worker"
)

// MessageResponse 通用消息响应
type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

// Server serves HTTP requests for the dispatch console.
type Server struct {
	config          util.Config
	store           db.Store
	traces          *tracking.Store
	assignStore     assignments.Store
	mapClient       maps.Client        // 高德地图（路线/定位/逆地理）
	eta             *maps.DrivingETA   // 驾车耗时缓存，未配置 key 时为 nil
	geoETA          *maps.GeoETA       // 调度算法视角的耗时来源
	taskDistributor worker.TaskDistributor
	wsHub           *websocket.Hub           // WebSocket连接管理（骑手和调度台）
	wsPubSub        *websocket.PubSubManager // Redis Pub/Sub管理（跨进程位置推送）
	router          *gin.Engine

	// 每个骑手一个细化器，新请求使旧的细化计算作废
	refineMu sync.Mutex
	refiners map[string]*dispatch.Refiner
}

// NewServer creates a new HTTP server and set up routing.
func NewServer(
	config util.Config,
	store db.Store,
	traces *tracking.Store,
	assignStore assignments.Store,
	wsHub *websocket.Hub,
	taskDistributor worker.TaskDistributor,
) (*Server, error) {
	// 创建高德地图客户端（如果配置了）
	var mapClient maps.Client
	var eta *maps.DrivingETA
	var geoETA *maps.GeoETA
	if config.AMapKey != "" {
		client, err := maps.NewAMapClient(config.AMapKey)
		if err != nil {
			return nil, fmt.Errorf("cannot create amap client: %w", err)
		}
		mapClient = client
		eta = maps.NewDrivingETA(client, config.AMapETAQPS, 1)
		geoETA = maps.NewGeoETA(eta)
		log.Info().Float64("qps", config.AMapETAQPS).Msg("driving ETA enabled")
	} else {
		log.Warn().Msg("AMAP_KEY not configured, driving ETA and IP locate disabled")
	}

	// 创建Redis Pub/Sub管理器（用于跨进程位置推送）
	var wsPubSub *websocket.PubSubManager
	if config.RedisAddress != "" && wsHub != nil {
		var err error
		wsPubSub, err = websocket.NewPubSubManager(config.RedisAddress, config.RedisPassword, wsHub)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create PubSub manager, cross-process position push disabled")
		} else {
			wsPubSub.Start()
			log.Info().Msg("WebSocket PubSub manager started")
		}
	}

	server := &Server{
		config:          config,
		store:           store,
		traces:          traces,
		assignStore:     assignStore,
		mapClient:       mapClient,
		eta:             eta,
		geoETA:          geoETA,
		taskDistributor: taskDistributor,
		wsHub:           wsHub,
		wsPubSub:        wsPubSub,
		refiners:        make(map[string]*dispatch.Refiner),
	}

	server.setupRouter()
	return server, nil
}

func (server *Server) setupRouter() {
	if server.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// 注册自定义验证器
	registerCustomValidators()

	// 跨域资源共享中间件
	router.Use(CORSMiddleware(server.config.AllowedOrigins))

	// 安全响应头中间件
	router.Use(SecurityHeadersMiddleware())

	// 请求追踪中间件（生成 X-Request-ID）
	router.Use(RequestTracingMiddleware())
	router.Use(RequestLoggingMiddleware())

	// Prometheus 指标中间件
	router.Use(PrometheusMiddleware())

	// 速率限制中间件
	rateLimiter := NewRateLimiter(DefaultRateLimiterConfig())
	router.Use(rateLimiter.Middleware())

	// 全局超时中间件：防止慢查询、外部API卡死导致goroutine泄漏
	router.Use(TimeoutMiddleware(server.config.HTTPRequestTimeout))

	// Prometheus 指标端点（供监控系统抓取）
	router.GET("/metrics", MetricsHandler())

	// 健康检查端点（供 Nginx/K8s 使用）
	router.GET("/healthz", server.healthCheck)
	router.GET("/ready", server.readinessCheck)

	// API v1
	v1 := router.Group("/v1")

	// 派单计算
	dispatchGroup := v1.Group("/dispatch")
	{
		dispatchGroup.GET("/candidates", server.getDispatchCandidates) // 单骑手候选排序
		dispatchGroup.POST("/plan", server.planDispatchRoute)          // 单骑手路径规划
		dispatchGroup.POST("/global", server.globalDispatch)           // 全局派单
	}

	// 派单方案持久化
	v1.GET("/assignments", server.getAssignment)
	v1.PUT("/assignments", server.putAssignment)
	v1.DELETE("/assignments", server.deleteAssignment)

	// 骑手位置与轨迹
	ridersGroup := v1.Group("/riders")
	{
		ridersGroup.GET("", server.listRiders)
		ridersGroup.GET("/:id/position", server.getRiderPosition)
		ridersGroup.POST("/:id/position", server.updateRiderPosition)
		ridersGroup.POST("/:id/locate", server.locateRider) // IP 粗定位兜底
		ridersGroup.GET("/:id/trace", server.getRiderTrace)
		ridersGroup.DELETE("/:id/trace", server.clearRiderTrace)
	}

	// 订单池快照（调度台展示用）
	v1.GET("/orders", server.listOrders)

	// 位置服务（服务端代理，不暴露地图 key）
	v1.GET("/location/reverse-geocode", server.reverseGeocode)

	// WebSocket：骑手上报位置、调度台订阅位置流
	v1.GET("/ws", server.handleWebSocket)

	server.router = router
}

// Start runs the HTTP server on a specific address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

// GetRouter returns the gin router for creating http.Server
func (server *Server) GetRouter() *gin.Engine {
	return server.router
}

// riderRefiner 取某骑手的路径细化器，不存在则创建
func (server *Server) riderRefiner(riderID string) *dispatch.Refiner {
	server.refineMu.Lock()
	defer server.refineMu.Unlock()
	refiner, ok := server.refiners[riderID]
	if !ok {
		refiner = &dispatch.Refiner{}
		server.refiners[riderID] = refiner
	}
	return refiner
}

// healthCheck 健康检查 - 基础存活检查
// GET /healthz
func (server *Server) healthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "dispatch-api",
	})
}

// readinessCheck 就绪检查 - 检查依赖服务
// GET /ready
func (server *Server) readinessCheck(ctx *gin.Context) {
	if err := server.store.Ping(ctx); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"service":  "dispatch-api",
		"database": "connected",
	})
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error" example:"error message"`
}

// errorResponse creates an error response.
// For 4xx client errors: returns the actual error message
// For 5xx server errors: use internalError() instead to avoid leaking details
func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// internalError logs the actual error and returns a safe generic message.
// Use this for 5xx errors to prevent leaking internal implementation details.
func internalError(ctx *gin.Context, err error) gin.H {
	// Attach to gin context so RequestLoggingMiddleware can include it
	_ = ctx.Error(err)

	evt := log.Error().
		Err(err).
		Str("request_id", GetRequestID(ctx)).
		Str("path", ctx.Request.URL.Path).
		Str("method", ctx.Request.Method)

	// If it's a Postgres error, log structured fields for faster debugging
	if pgErr, ok := err.(*pgconn.PgError); ok {
		evt = evt.
			Str("sqlstate", pgErr.Code).
			Str("pg_message", pgErr.Message).
			Str("pg_detail", pgErr.Detail)
	}

	evt.Msg("internal error")

	return gin.H{"error": "internal server error"}
}
