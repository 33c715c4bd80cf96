package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"go.uber.org/zap"
)

// ErrNoSession 表示该用户当前没有登录会话
var ErrNoSession = errors.New("会话不存在或已退出")

// Event 在每次提交后发给订阅者。Closed 为 true 表示会话已退出。
type Event struct {
	UserID string
	State  State
	Closed bool
}

// Result 是一次两阶段更新的结果
type Result struct {
	// State 成功时是新状态，失败时是未被修改的旧状态
	State State
	Err   error
}

func (r Result) OK() bool { return r.Err == nil }

// entry 是单个用户的会话。writeMu 串行化所有写操作（包括远程调用），
// mu 只保护 state 的读写，所以读者总是看到最近一次完整提交的结果。
type entry struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	state  State
	ready  bool // Open 完成后为 true
	dirty  bool
	closed bool
}

func (e *entry) snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Manager 持有所有已登录用户的会话状态
type Manager struct {
	store SnapshotStore
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

func NewManager(store SnapshotStore) *Manager {
	return &Manager{
		store:    store,
		now:      time.Now,
		sessions: make(map[string]*entry),
		subs:     make(map[int]func(Event)),
	}
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	return e, ok
}

// Open 在登录时建立会话。资料以数据库为准，购物车、主题和取货选择从快照恢复。
// 会话已存在时只刷新资料，保留购物车。
func (m *Manager) Open(ctx context.Context, profile user.Profile) State {
	e, exists := m.acquire(profile.ID)
	defer e.writeMu.Unlock()

	next := State{User: profile.Clone(), Theme: ThemeLight}
	if exists {
		prev := e.snapshot()
		next.Cart, next.Theme, next.Pickup = prev.Cart, prev.Theme, prev.Pickup
	} else if restored, ok := m.restore(ctx, profile.ID); ok {
		next.Cart, next.Theme, next.Pickup = restored.Cart, restored.Theme, restored.Pickup
	}

	m.apply(ctx, profile.ID, e, next)
	return next.Clone()
}

// acquire 返回持有写锁的会话，不存在时新建。
// 拿到锁时发现会话刚被 Close 就换一个新的。
func (m *Manager) acquire(id string) (*entry, bool) {
	for {
		m.mu.Lock()
		e, exists := m.sessions[id]
		if !exists {
			e = &entry{}
			m.sessions[id] = e
		}
		m.mu.Unlock()

		e.writeMu.Lock()
		e.mu.RLock()
		closed, ready := e.closed, e.ready
		e.mu.RUnlock()
		if !closed {
			return e, exists && ready
		}
		e.writeMu.Unlock()
	}
}

func (m *Manager) restore(ctx context.Context, id string) (State, bool) {
	data, err := m.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			logging.L().Warn("读取会话快照失败", zap.String("user", id), zap.Error(err))
		}
		return State{}, false
	}
	st, err := decodeSnapshot(data)
	if err != nil {
		logging.L().Warn("丢弃无法解析的会话快照", zap.String("user", id), zap.Error(err))
		return State{}, false
	}
	if st.User.ID != "" && st.User.ID != id {
		logging.L().Warn("会话快照属于其他用户，已忽略", zap.String("user", id), zap.String("owner", st.User.ID))
		return State{}, false
	}
	return st, true
}

// Get 返回当前已提交状态的副本
func (m *Manager) Get(id string) (State, error) {
	e, ok := m.lookup(id)
	if !ok {
		return State{}, ErrNoSession
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed || !e.ready {
		return State{}, ErrNoSession
	}
	return e.state.Clone(), nil
}

// Update 在副本上执行 fn，fn 返回错误时状态保持不变。
// 同一用户的所有更新按到达顺序串行执行。
func (m *Manager) Update(ctx context.Context, id string, fn func(*State) error) (State, error) {
	res := m.Commit(ctx, id, fn, nil)
	return res.State, res.Err
}

// Commit 是两阶段更新：先在副本上应用 local，再调用 remote 把变化提交到外部存储，
// 只有 remote 成功后副本才成为新状态。remote 可以在提交前修正副本，例如写入上传后得到的URI。
// 远程调用期间持有该用户的写锁，并发的写操作会排队，读操作不受影响。
func (m *Manager) Commit(ctx context.Context, id string, local func(*State) error, remote func(context.Context, *State) error) Result {
	e, ok := m.lookup(id)
	if !ok {
		return Result{Err: ErrNoSession}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.RLock()
	usable := e.ready && !e.closed
	current := e.state.Clone()
	e.mu.RUnlock()
	if !usable {
		return Result{Err: ErrNoSession}
	}

	proposed := current.Clone()
	if local != nil {
		if err := local(&proposed); err != nil {
			return Result{State: current, Err: err}
		}
	}
	if remote != nil {
		if err := remote(ctx, &proposed); err != nil {
			return Result{State: current, Err: err}
		}
	}

	m.apply(ctx, id, e, proposed)
	return Result{State: proposed.Clone()}
}

// apply 写入新状态、镜像到快照槽并通知订阅者。调用方必须持有 e.writeMu。
func (m *Manager) apply(ctx context.Context, id string, e *entry, next State) {
	e.mu.Lock()
	e.state = next.Clone()
	e.ready = true
	e.mu.Unlock()

	m.mirror(ctx, id, e, next)
	m.publish(Event{UserID: id, State: next.Clone()})
}

// mirror 把状态写入快照槽。失败时标记为脏，由后台刷新器重试。
func (m *Manager) mirror(ctx context.Context, id string, e *entry, st State) {
	err := m.save(ctx, id, st)
	e.mu.Lock()
	e.dirty = err != nil
	e.mu.Unlock()
	if err != nil {
		logging.L().Warn("会话快照写入失败，稍后重试", zap.String("user", id), zap.Error(err))
	}
}

func (m *Manager) save(ctx context.Context, id string, st State) error {
	data, err := encodeSnapshot(st, m.now())
	if err != nil {
		return fmt.Errorf("无法序列化会话快照: %w", err)
	}
	return m.store.Save(ctx, id, data)
}

// Close 退出登录：丢弃内存中的会话并删除快照
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	e.closed = true
	e.dirty = false
	e.mu.Unlock()

	m.publish(Event{UserID: id, Closed: true})
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除会话快照失败: %w", err)
	}
	return nil
}

// Subscribe 注册一个回调，每次提交后按提交顺序调用。回调不能再更新同一个会话。
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.RLock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (m *Manager) entries() map[string]*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		out[id] = e
	}
	return out
}

// Len 返回当前会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// FlushDirty 重试所有写入失败的快照，返回成功写入的数量
func (m *Manager) FlushDirty(ctx context.Context) (int, error) {
	var (
		flushed int
		errs    []error
	)
	for id, e := range m.entries() {
		e.writeMu.Lock()
		e.mu.RLock()
		dirty, usable := e.dirty, e.ready && !e.closed
		st := e.state.Clone()
		e.mu.RUnlock()
		if dirty && usable {
			if err := m.save(ctx, id, st); err != nil {
				errs = append(errs, fmt.Errorf("用户 %s: %w", id, err))
			} else {
				e.mu.Lock()
				e.dirty = false
				e.mu.Unlock()
				flushed++
			}
		}
		e.writeMu.Unlock()
	}
	return flushed, errors.Join(errs...)
}

// ExportTo 把所有会话写入指定的快照槽，用于Redis恢复后的重建
func (m *Manager) ExportTo(ctx context.Context, store SnapshotStore) error {
	for id, e := range m.entries() {
		e.mu.RLock()
		ready := e.ready && !e.closed
		e.mu.RUnlock()
		if !ready {
			continue
		}
		st := e.snapshot()
		data, err := encodeSnapshot(st, m.now())
		if err != nil {
			return err
		}
		if err := store.Save(ctx, id, data); err != nil {
			return fmt.Errorf("重建用户 %s 的快照失败: %w", id, err)
		}
	}
	return nil
}
