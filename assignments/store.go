// Package assignments 持久化每日派单方案：按（骑手, 日期）保存有序去重的
// 订单号列表。保存是整体覆盖，不做增量合并。
package assignments

import (
	"context"
	"time"
)

// DateLayout 日期键格式
const DateLayout = "2006-01-02"

// Store 派单方案存储
type Store interface {
	// Get 读取某骑手某日的方案；不存在返回空列表
	Get(ctx context.Context, riderID, date string) ([]string, error)
	// Save 整体覆盖某骑手某日的方案，订单号按首次出现去重
	Save(ctx context.Context, riderID, date string, orderIDs []string) error
	// Clear 删除某骑手某日的方案
	Clear(ctx context.Context, riderID, date string) error
}

// DateKey 按本地日期生成键
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// dedupe 首次出现保序去重
func dedupe(orderIDs []string) []string {
	seen := make(map[string]bool, len(orderIDs))
	out := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
