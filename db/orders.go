package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = errors.New("order not found")

const listOrdersSQL = `
SELECT id, status, merchant_lat, merchant_lng, customer_lat, customer_lng,
       eta, picked_at, delivered_at, rider_id, site
FROM dispatch_orders
WHERE created_at >= CURRENT_DATE
ORDER BY created_at
`

const listOrdersBySiteSQL = `
SELECT id, status, merchant_lat, merchant_lng, customer_lat, customer_lng,
       eta, picked_at, delivered_at, rider_id, site
FROM dispatch_orders
WHERE created_at >= CURRENT_DATE AND site = $1
ORDER BY created_at
`

const getOrderSQL = `
SELECT id, status, merchant_lat, merchant_lng, customer_lat, customer_lng,
       eta, picked_at, delivered_at, rider_id, site
FROM dispatch_orders
WHERE id = $1
`

const listRidersSQL = `
SELECT id, name, site
FROM dispatch_riders
ORDER BY id
`

// ListOrders 当日订单池快照
func (s *SQLStore) ListOrders(ctx context.Context) ([]dispatch.Order, error) {
	rows, err := s.connPool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListOrdersBySite 按站点过滤的订单池快照
func (s *SQLStore) ListOrdersBySite(ctx context.Context, site string) ([]dispatch.Order, error) {
	rows, err := s.connPool.Query(ctx, listOrdersBySiteSQL, site)
	if err != nil {
		return nil, fmt.Errorf("query orders by site: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// GetOrder 单个订单
func (s *SQLStore) GetOrder(ctx context.Context, orderID string) (dispatch.Order, error) {
	row := s.connPool.QueryRow(ctx, getOrderSQL, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispatch.Order{}, ErrOrderNotFound
		}
		return dispatch.Order{}, fmt.Errorf("query order %s: %w", orderID, err)
	}
	return order, nil
}

// ListRiders 骑手档案
func (s *SQLStore) ListRiders(ctx context.Context) ([]dispatch.Rider, error) {
	rows, err := s.connPool.Query(ctx, listRidersSQL)
	if err != nil {
		return nil, fmt.Errorf("query riders: %w", err)
	}
	defer rows.Close()

	var riders []dispatch.Rider
	for rows.Next() {
		var r dispatch.Rider
		if err := rows.Scan(&r.ID, &r.Name, &r.Site); err != nil {
			return nil, fmt.Errorf("scan rider: %w", err)
		}
		riders = append(riders, r)
	}
	return riders, rows.Err()
}

func scanOrders(rows pgx.Rows) ([]dispatch.Order, error) {
	var orders []dispatch.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (dispatch.Order, error) {
	var o dispatch.Order
	var status string
	err := row.Scan(&o.ID, &status,
		&o.Merchant.Lat, &o.Merchant.Lng,
		&o.Customer.Lat, &o.Customer.Lng,
		&o.ETA, &o.PickedAt, &o.DeliveredAt, &o.RiderID, &o.Site)
	if err != nil {
		return dispatch.Order{}, err
	}
	o.Status = dispatch.OrderStatus(status)
	return o, nil
}
