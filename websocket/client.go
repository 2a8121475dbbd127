package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// pong等待超时（客户端必须在此时间内响应）
	pongWait = 60 * time.Second

	// ping间隔（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB，位置消息很小
)

// NewClient 创建新的客户端连接
func NewClient(hub *Hub, conn *websocket.Conn, info ClientInfo) *Client {
	return &Client{
		info: info,
		hub:  hub,
		send: make(chan Message, 256),
		done: make(chan struct{}),
		conn: conn,
	}
}

// ReadPump 从WebSocket读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).
					Str("rider_id", c.info.RiderID).
					Str("client_type", string(c.info.ClientType)).
					Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(msg)
	}
}

// WritePump 向WebSocket写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteJSON(message)
			if err != nil {
				log.Error().Err(err).
					Str("client_type", string(c.info.ClientType)).
					Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端发送的消息
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "pos":
		// 位置上报只接受骑手连接，骑手号以连接身份为准
		if c.info.ClientType != ClientTypeRider {
			log.Warn().
				Str("client_type", string(c.info.ClientType)).
				Msg("position report from non-rider connection, ignored")
			return
		}
		var data PositionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			log.Warn().Err(err).
				Str("rider_id", c.info.RiderID).
				Msg("malformed position payload")
			return
		}
		c.hub.HandlePosition(c.info.RiderID, dispatch.GeoPoint{Lat: data.Lat, Lng: data.Lng})

	case "subscribe":
		if c.info.ClientType != ClientTypeConsole {
			return
		}
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			log.Warn().Err(err).
				Str("console_id", c.info.ConsoleID).
				Msg("malformed subscribe payload")
			return
		}
		c.hub.Watch(c, data.RiderID)

	case "unsubscribe":
		if c.info.ClientType != ClientTypeConsole {
			return
		}
		c.hub.Unwatch(c)

	case "pong":
		// 心跳响应，重置超时
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

	default:
		log.Warn().
			Str("type", msg.Type).
			Str("client_type", string(c.info.ClientType)).
			Msg("Unknown message type from client")
	}
}
