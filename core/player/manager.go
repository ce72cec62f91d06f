package player

import (
	"context"
	"sync"
	"time"

	"Tunevault/logger"
)

const saveTimeout = 3 * time.Second

// SnapshotCache 持久化播放器快照（Redis）
type SnapshotCache interface {
	Save(ctx context.Context, userID string, snapshot interface{}) error
	Load(ctx context.Context, userID string, dst interface{}) (bool, error)
}

// ChangeFunc 用户状态变化时的回调，在 store 的锁内调用，不能阻塞
type ChangeFunc func(userID string, st State)

type entry struct {
	store *Store
	unsub func()
	saves chan State
	done  chan struct{}
}

// Manager 每个用户一个 Store，首次访问时从快照恢复
type Manager struct {
	mu       sync.Mutex
	stores   map[string]*entry
	cache    SnapshotCache
	onChange ChangeFunc
	closed   bool
}

// NewManager creates a manager. cache and onChange may be nil.
func NewManager(cache SnapshotCache, onChange ChangeFunc) *Manager {
	return &Manager{
		stores:   make(map[string]*entry),
		cache:    cache,
		onChange: onChange,
	}
}

// Get 返回用户的 Store，不存在时创建。Close 之后返回不保存、不推送的临时 Store
func (m *Manager) Get(ctx context.Context, userID string) *Store {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return NewStore()
	}
	if e, ok := m.stores[userID]; ok {
		m.mu.Unlock()
		return e.store
	}
	m.mu.Unlock()

	// 读取快照是一次 Redis 往返，不持有锁
	st := m.load(ctx, userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewStoreFrom(st)
	}
	// 并发的首次访问只保留一个
	if e, ok := m.stores[userID]; ok {
		return e.store
	}

	e := &entry{
		store: NewStoreFrom(st),
		saves: make(chan State, 1),
		done:  make(chan struct{}),
	}
	e.unsub = e.store.Subscribe(func(s State) {
		if m.onChange != nil {
			m.onChange(userID, s)
		}
		if m.cache != nil {
			offerLatest(e.saves, s)
		}
	})
	if m.cache != nil {
		go m.saveLoop(userID, e)
	} else {
		close(e.done)
	}
	m.stores[userID] = e
	return e.store
}

func (m *Manager) load(ctx context.Context, userID string) State {
	st := InitialState()
	if m.cache == nil {
		return st
	}
	var saved State
	found, err := m.cache.Load(ctx, userID, &saved)
	if err != nil {
		logger.Warn("[Player] 读取播放器快照失败", logger.String("userId", userID), logger.ErrorField(err))
		return st
	}
	if found {
		logger.Debug("[Player] 已恢复播放器状态", logger.String("userId", userID))
		return saved
	}
	return st
}

// offerLatest 只保留最新的一份待保存快照
func offerLatest(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Manager) saveLoop(userID string, e *entry) {
	defer close(e.done)
	for s := range e.saves {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := m.cache.Save(ctx, userID, s); err != nil {
			logger.Warn("[Player] 保存播放器快照失败", logger.String("userId", userID), logger.ErrorField(err))
		}
		cancel()
	}
}

// Snapshot 返回用户当前的播放器状态
func (m *Manager) Snapshot(ctx context.Context, userID string) State {
	return m.Get(ctx, userID).Snapshot()
}

// Close 停止所有保存协程并等待最后一次保存完成
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*entry, 0, len(m.stores))
	for _, e := range m.stores {
		entries = append(entries, e)
	}
	m.stores = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.unsub()
		if m.cache != nil {
			close(e.saves)
		}
		<-e.done
	}
}
