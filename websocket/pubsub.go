package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

// Redis频道前缀：position:rider:{rider_id}
const channelPrefixPosition = "position:rider:"

// PubSubManager 管理Redis Pub/Sub，把其他进程发布的位置桥接进Hub
type PubSubManager struct {
	redisClient *redis.Client
	hub         *Hub
	ctx         context.Context
	cancel      context.CancelFunc
}

// PositionPushMessage 通过Redis传输的位置消息
type PositionPushMessage struct {
	RiderID string  `json:"rider_id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// NewPubSubManager 创建PubSub管理器
func NewPubSubManager(redisAddr string, redisPassword string, hub *Hub) (*PubSubManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubManager{
		redisClient: client,
		hub:         hub,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start 启动订阅（监听所有骑手的位置频道）
func (m *PubSubManager) Start() {
	pubsub := m.redisClient.PSubscribe(m.ctx, channelPrefixPosition+"*")

	go func() {
		defer pubsub.Close()

		log.Info().Msg("WebSocket PubSub started, listening for rider position pushes")

		for {
			select {
			case <-m.ctx.Done():
				log.Info().Msg("WebSocket PubSub stopped")
				return
			default:
				msg, err := pubsub.ReceiveMessage(m.ctx)
				if err != nil {
					if m.ctx.Err() != nil {
						return
					}
					log.Error().Err(err).Msg("receive pubsub message failed")
					time.Sleep(time.Second)
					continue
				}

				m.handlePubSubMessage(msg.Payload)
			}
		}
	}()
}

// Stop 停止订阅
func (m *PubSubManager) Stop() {
	m.cancel()
	m.redisClient.Close()
}

// handlePubSubMessage 处理接收到的位置消息，走与骑手直连上报相同的落地路径
func (m *PubSubManager) handlePubSubMessage(payload string) {
	var pushMsg PositionPushMessage
	if err := json.Unmarshal([]byte(payload), &pushMsg); err != nil {
		log.Error().Err(err).Str("payload", payload).Msg("unmarshal pubsub message failed")
		return
	}
	if pushMsg.RiderID == "" {
		log.Warn().Str("payload", payload).Msg("position push without rider_id, skipped")
		return
	}

	m.hub.HandlePosition(pushMsg.RiderID, dispatch.GeoPoint{Lat: pushMsg.Lat, Lng: pushMsg.Lng})
}

// PublishPosition 发布骑手位置（由其他进程调用，如接入网关）
func PublishPosition(ctx context.Context, redisClient *redis.Client, riderID string, position dispatch.GeoPoint) error {
	payload, err := json.Marshal(PositionPushMessage{
		RiderID: riderID,
		Lat:     position.Lat,
		Lng:     position.Lng,
	})
	if err != nil {
		return err
	}

	channel := fmt.Sprintf("%s%s", channelPrefixPosition, riderID)
	return redisClient.Publish(ctx, channel, payload).Err()
}
