package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sunobot/core/clock"
	"sunobot/logger"
	"sunobot/model"
)

const dateLayout = "2006-01-02"

// lockStripes 按用户 ID 分段加锁，锁的数量固定，不随用户数增长
const lockStripes = 64

// Store 持久化每个用户的计数记录
type Store interface {
	Load(ctx context.Context, userID int64) (model.UserQuota, bool, error)
	Save(ctx context.Context, q model.UserQuota) error
}

// Manager 按自然日限制每个用户的生成次数。
// 日期变化时在下一次访问时惰性清零，不需要定时任务。
type Manager struct {
	store   Store
	clock   clock.Clock
	ceiling atomic.Int64

	locks [lockStripes]sync.Mutex
}

// NewManager 创建额度管理器
func NewManager(store Store, ceiling int, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	m := &Manager{
		store: store,
		clock: clk,
	}
	m.ceiling.Store(int64(ceiling))
	return m
}

// Ceiling 当前每日上限
func (m *Manager) Ceiling() int {
	return int(m.ceiling.Load())
}

// SetCeiling 热更新每日上限
func (m *Manager) SetCeiling(n int) {
	old := m.ceiling.Swap(int64(n))
	if old != int64(n) {
		logger.Info("daily limit updated", logger.Int64("old", old), logger.Int("new", n))
	}
}

// userLock 同一用户总是映射到同一把锁，不同用户可能共用
func (m *Manager) userLock(userID int64) *sync.Mutex {
	return &m.locks[uint64(userID)%lockStripes]
}

func (m *Manager) today() string {
	return m.clock.Now().Format(dateLayout)
}

// current 读取记录并按今天的日期归一化，第二个返回值表示是否需要回写
func (m *Manager) current(ctx context.Context, userID int64) (model.UserQuota, bool, error) {
	today := m.today()
	q, ok, err := m.store.Load(ctx, userID)
	if err != nil {
		return model.UserQuota{}, false, fmt.Errorf("load quota for user %d: %w", userID, err)
	}
	if !ok || q.Date != today {
		return model.UserQuota{UserID: userID, Count: 0, Date: today}, true, nil
	}
	return q, false, nil
}

// CheckAndReserve 检查用户今天是否还能生成。只做判断，不计数；
// 请求成功交付后才由 Increment 计数。
func (m *Manager) CheckAndReserve(ctx context.Context, userID int64) (bool, error) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	q, dirty, err := m.current(ctx, userID)
	if err != nil {
		return false, err
	}
	if dirty {
		if err := m.store.Save(ctx, q); err != nil {
			return false, fmt.Errorf("save quota for user %d: %w", userID, err)
		}
	}

	if q.Count >= m.Ceiling() {
		logger.Info("daily limit reached",
			logger.UserID(userID),
			logger.Int("count", q.Count),
			logger.Int("ceiling", m.Ceiling()))
		return false, nil
	}
	return true, nil
}

// Increment 今天的计数加一，不会超过上限
func (m *Manager) Increment(ctx context.Context, userID int64) error {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	q, _, err := m.current(ctx, userID)
	if err != nil {
		return err
	}
	if q.Count >= m.Ceiling() {
		logger.Warn("increment clamped at daily limit",
			logger.UserID(userID),
			logger.Int("count", q.Count))
		return nil
	}

	q.Count++
	if err := m.store.Save(ctx, q); err != nil {
		return fmt.Errorf("save quota for user %d: %w", userID, err)
	}
	return nil
}

// Usage 返回今天的使用情况，只读
func (m *Manager) Usage(ctx context.Context, userID int64) (model.QuotaUsage, error) {
	q, _, err := m.current(ctx, userID)
	if err != nil {
		return model.QuotaUsage{}, err
	}
	return model.QuotaUsage{Count: q.Count, Ceiling: m.Ceiling()}, nil
}

// MemoryStore 进程内存储，重启后清空
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]model.UserQuota
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]model.UserQuota)}
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (model.UserQuota, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.records[userID]
	return q, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, q model.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[q.UserID] = q
	return nil
}
