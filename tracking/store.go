// Package tracking 维护骑手实时位置与移动轨迹。
// 数据只存进程内存：位置是易失的运行态，权威来源是骑手端的持续上报。
package tracking

import (
	"sync"
	"time"

	"github.com/xiumouer/waimai-ops-intelligence/dispatch"
)

// 单骑手轨迹点数上限，超出后淘汰最旧的点
const maxTracePoints = 200

// TracePoint 一次位置上报
type TracePoint struct {
	Position   dispatch.GeoPoint `json:"position"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Store 位置与轨迹存储。时间戳由 Store 在收到上报时打上，
// 网络乱序的上报一律按到达序生效（后到覆盖先到）。
type Store struct {
	mu      sync.RWMutex
	current map[string]TracePoint
	traces  map[string][]TracePoint

	now func() time.Time // 测试注入
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{
		current: make(map[string]TracePoint),
		traces:  make(map[string][]TracePoint),
		now:     time.Now,
	}
}

// SetCurrent 更新骑手当前位置并追加轨迹点，返回打好时间戳的点
func (s *Store) SetCurrent(riderID string, position dispatch.GeoPoint) TracePoint {
	point := TracePoint{Position: position, CapturedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[riderID] = point
	trace := append(s.traces[riderID], point)
	if overflow := len(trace) - maxTracePoints; overflow > 0 {
		trace = trace[overflow:]
	}
	s.traces[riderID] = trace
	return point
}

// Current 骑手当前位置；从未上报过则 ok=false
func (s *Store) Current(riderID string) (TracePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	point, ok := s.current[riderID]
	return point, ok
}

// Trace 骑手轨迹的副本，时间升序（最旧在前）
func (s *Store) Trace(riderID string) []TracePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace := s.traces[riderID]
	out := make([]TracePoint, len(trace))
	copy(out, trace)
	return out
}

// ClearTrace 清空轨迹但保留当前位置
func (s *Store) ClearTrace(riderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, riderID)
}

// Positions 所有有当前位置的骑手，供全局分派取用
func (s *Store) Positions() []dispatch.RiderPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dispatch.RiderPosition, 0, len(s.current))
	for riderID, point := range s.current {
		out = append(out, dispatch.RiderPosition{RiderID: riderID, Position: point.Position})
	}
	return out
}
