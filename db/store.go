// Package db 提供订单池与骑手档案的只读快照查询。
// 订单生命周期由订单系统负责写入，派单服务只消费快照。
package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

// Store 数据库查询接口
type Store interface {
	// ListOrders 当日订单池快照（含终态订单，过滤在算法层做）
	ListOrders(ctx context.Context) ([]dispatch.Order, error)
	// ListOrdersBySite 按站点过滤的订单池快照
	ListOrdersBySite(ctx context.Context, site string) ([]dispatch.Order, error)
	// GetOrder 单个订单
	GetOrder(ctx context.Context, orderID string) (dispatch.Order, error)
	// ListRiders 骑手档案
	ListRiders(ctx context.Context) ([]dispatch.Rider, error)
	// Ping 连接健康检查
	Ping(ctx context.Context) error
	// Close 释放连接池
	Close()
}

// SQLStore 基于 pgx 连接池的实现
type SQLStore struct {
	connPool *pgxpool.Pool
}

// NewStore 创建数据库查询对象
func NewStore(connPool *pgxpool.Pool) Store {
	return &SQLStore{connPool: connPool}
}

// Ping 连接健康检查
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.connPool.Ping(ctx)
}

// Close 释放连接池
func (s *SQLStore) Close() {
	s.connPool.Close()
}
