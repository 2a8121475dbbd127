// Package websocket 提供骑手位置实时通道：骑手端连接上报位置，
// 调度台连接按骑手订阅位置流。
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gorilla_websocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
	"github.com/xiumouer/waimai-ops-intelligence/tracking"
)

// Message 通过WebSocket发送的消息结构
type Message struct {
	Type      string          `json:"type"`      // 消息类型：pos/subscribe/unsubscribe/position/ping/pong
	Data      json.RawMessage `json:"data"`      // 消息数据
	Timestamp time.Time       `json:"timestamp"` // 消息时间戳
}

// ClientType 客户端连接类型
type ClientType string

const (
	ClientTypeRider   ClientType = "rider"   // 骑手端，上报位置
	ClientTypeConsole ClientType = "console" // 调度台，订阅位置
)

// ClientInfo 客户端信息
type ClientInfo struct {
	ClientType ClientType
	RiderID    string // 骑手连接必填；调度台连接为空
	ConsoleID  string // 调度台连接标识（用于日志）
}

// Client 表示一个WebSocket客户端连接
type Client struct {
	info      ClientInfo
	hub       *Hub
	send      chan Message
	done      chan struct{}
	conn      *gorilla_websocket.Conn // gorilla websocket连接
	closeOnce sync.Once // 确保 send channel 只关闭一次
}

// PositionSink 位置落地接口（由 tracking.Store 实现）
type PositionSink interface {
	SetCurrent(riderID string, position dispatch.GeoPoint) tracking.TracePoint
}

// PositionUpdate 待广播的位置更新
type PositionUpdate struct {
	RiderID string              `json:"rider_id"`
	Point   tracking.TracePoint `json:"point"`
}

// PositionData 位置消息载荷
type PositionData struct {
	RiderID    string    `json:"rider_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// SubscribeData 订阅消息载荷
type SubscribeData struct {
	RiderID string `json:"rider_id"`
}

// Hub 管理所有WebSocket连接与按骑手的订阅关系
type Hub struct {
	// 骑手连接，key: rider_id
	riders map[string]*Client
	// 每个骑手的订阅者，key: rider_id
	watchers map[string]map[*Client]struct{}
	// 调度台连接当前关注的骑手
	watching map[*Client]string

	register   chan *Client
	unregister chan *Client
	broadcast  chan PositionUpdate

	sink   PositionSink
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub 创建新的Hub
func NewHub(ctx context.Context, sink PositionSink) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		riders:     make(map[string]*Client),
		watchers:   make(map[string]map[*Client]struct{}),
		watching:   make(map[*Client]string),
		register:   make(chan *Client, 10),
		unregister: make(chan *Client, 10),
		broadcast:  make(chan PositionUpdate, 100),
		sink:       sink,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run 启动Hub，处理注册、注销和位置广播
func (h *Hub) Run() {
	log.Info().Msg("WebSocket Hub started")
	defer log.Info().Msg("WebSocket Hub stopped")

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case update := <-h.broadcast:
			h.broadcastPosition(update)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch client.info.ClientType {
	case ClientTypeRider:
		if old, exists := h.riders[client.info.RiderID]; exists {
			// 同一骑手重连，关闭旧连接
			close(old.done)
		}
		h.riders[client.info.RiderID] = client
		log.Info().
			Str("rider_id", client.info.RiderID).
			Msg("Rider connected via WebSocket")

	case ClientTypeConsole:
		h.watching[client] = ""
		log.Info().
			Str("console_id", client.info.ConsoleID).
			Msg("Console connected via WebSocket")
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch client.info.ClientType {
	case ClientTypeRider:
		// 只有 map 中的连接就是当前要注销的连接时才删除，
		// 避免新连接替换旧连接后，旧连接注销时删掉了新连接
		if existing, exists := h.riders[client.info.RiderID]; exists && existing == client {
			delete(h.riders, client.info.RiderID)
			client.closeOnce.Do(func() {
				close(client.send)
			})
			log.Info().
				Str("rider_id", client.info.RiderID).
				Msg("Rider disconnected from WebSocket")
		}

	case ClientTypeConsole:
		if _, exists := h.watching[client]; exists {
			h.unwatchLocked(client)
			delete(h.watching, client)
			client.closeOnce.Do(func() {
				close(client.send)
			})
			log.Info().
				Str("console_id", client.info.ConsoleID).
				Msg("Console disconnected from WebSocket")
		}
	}
}

// Watch 调度台切换订阅到指定骑手，取消之前的订阅
func (h *Hub) Watch(client *Client, riderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.watching[client]; !exists {
		return
	}
	h.unwatchLocked(client)

	if riderID == "" {
		return
	}
	if h.watchers[riderID] == nil {
		h.watchers[riderID] = make(map[*Client]struct{})
	}
	h.watchers[riderID][client] = struct{}{}
	h.watching[client] = riderID
	log.Debug().
		Str("console_id", client.info.ConsoleID).
		Str("rider_id", riderID).
		Msg("console watching rider positions")
}

// Unwatch 调度台取消当前订阅
func (h *Hub) Unwatch(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unwatchLocked(client)
}

func (h *Hub) unwatchLocked(client *Client) {
	riderID := h.watching[client]
	if riderID == "" {
		return
	}
	if set := h.watchers[riderID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.watchers, riderID)
		}
	}
	h.watching[client] = ""
}

// HandlePosition 处理一条位置上报：先落地到位置存储（后到覆盖先到），
// 再推送给该骑手的所有订阅者
func (h *Hub) HandlePosition(riderID string, position dispatch.GeoPoint) {
	point := h.sink.SetCurrent(riderID, position)

	select {
	case h.broadcast <- PositionUpdate{RiderID: riderID, Point: point}:
	default:
		log.Warn().
			Str("rider_id", riderID).
			Msg("Broadcast channel full, dropping position update")
	}
}

// broadcastPosition 推送位置给订阅者
func (h *Hub) broadcastPosition(update PositionUpdate) {
	data, err := json.Marshal(PositionData{
		RiderID:    update.RiderID,
		Lat:        update.Point.Position.Lat,
		Lng:        update.Point.Position.Lng,
		CapturedAt: update.Point.CapturedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal position data")
		return
	}
	msg := Message{
		Type:      "position",
		Data:      data,
		Timestamp: update.Point.CapturedAt,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.watchers[update.RiderID] {
		select {
		case client.send <- msg:
		default:
			log.Warn().
				Str("console_id", client.info.ConsoleID).
				Str("rider_id", update.RiderID).
				Msg("Console send buffer full, dropping position")
		}
	}
}

// Register 注册客户端到Hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 从Hub注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// IsRiderOnline 检查骑手连接是否在线
func (h *Hub) IsRiderOnline(riderID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.riders[riderID]
	return exists
}

// OnlineRiderCount 在线骑手连接数
func (h *Hub) OnlineRiderCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.riders)
}

// ConnectionCounts 当前骑手与调度台连接数
func (h *Hub) ConnectionCounts() (riders, consoles int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.riders), len(h.watching)
}

// WatcherCount 某骑手当前的订阅者数量
func (h *Hub) WatcherCount(riderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[riderID])
}

// Shutdown 关闭Hub
func (h *Hub) Shutdown() {
	log.Info().Msg("Shutting down WebSocket Hub")
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.riders {
		client.closeOnce.Do(func() {
			close(client.send)
		})
	}
	for client := range h.watching {
		client.closeOnce.Do(func() {
			close(client.send)
		})
	}
}
