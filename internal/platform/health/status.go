package health

import (
	"sync"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"go.uber.org/zap"
)

// State 定义了Redis快照层健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateRebuilding
	// StateDisabled 表示配置中关闭了Redis，快照只写数据库
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateRebuilding:
		return "rebuilding"
	case StateDisabled:
		return "disabled"
	}
	return "unknown"
}

// Status 负责线程安全地管理和提供Redis的健康状态。
type Status struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
}

// NewStatus 创建一个状态机。enabled 为 false 时永远处于 StateDisabled。
func NewStatus(enabled bool) *Status {
	if !enabled {
		return &Status{currentState: StateDisabled}
	}
	return &Status{currentState: StateHealthy}
}

// State 返回当前的健康状态。
func (sm *Status) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// RedisUsable 只有健康状态下才应读写Redis
func (sm *Status) RedisUsable() bool {
	return sm.State() == StateHealthy
}

// SetInitialRunID 在启动时设置初始的Redis run_id。
func (sm *Status) SetInitialRunID(runID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastKnownRunID = runID
}

// Assess 根据一次检查的结果推进状态机，返回是否需要重建Redis中的快照
func (sm *Status) Assess(isCurrentlyConnected bool, newRunID string) (needsRebuild bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	log := logging.L()
	switch sm.currentState {
	case StateDisabled:
		return false
	case StateHealthy:
		if !isCurrentlyConnected {
			sm.currentState = StateDegraded
			log.Warn("健康检查: Redis连接丢失，系统状态 -> [降级]")
		} else if sm.lastKnownRunID != "" && sm.lastKnownRunID != newRunID {
			sm.currentState = StateRebuilding
			needsRebuild = true
			log.Warn("健康检查: 检测到Redis重启，系统状态 -> [重建中]",
				zap.String("from", sm.lastKnownRunID), zap.String("to", newRunID))
		}
	case StateDegraded:
		if isCurrentlyConnected {
			// 降级期间的写入只落在数据库，恢复后一律重建
			sm.currentState = StateRebuilding
			needsRebuild = true
			log.Info("健康检查: Redis已恢复，系统状态 -> [重建中]")
		}
	case StateRebuilding:
		if !isCurrentlyConnected {
			sm.currentState = StateDegraded
			log.Warn("健康检查: 在快照重建期间Redis连接再次丢失，系统状态 -> [降级]")
		} else {
			// 连接正常但仍处于重建状态，说明上次重建失败了
			needsRebuild = true
			log.Info("健康检查: 系统处于[重建中]状态，将再次尝试重建快照")
		}
	}

	if isCurrentlyConnected {
		sm.lastKnownRunID = newRunID
	}

	return needsRebuild
}

// MarkRebuildComplete 在一次重建尝试之后调用
func (sm *Status) MarkRebuildComplete(success bool, runIDAfterRebuild string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.currentState != StateRebuilding {
		return
	}

	log := logging.L()
	if success && sm.lastKnownRunID != runIDAfterRebuild {
		log.Warn("健康检查: 快照重建期间检测到Redis再次重启，重建无效，保持[重建中]状态",
			zap.String("from", sm.lastKnownRunID), zap.String("to", runIDAfterRebuild))
		sm.lastKnownRunID = runIDAfterRebuild
		return
	}

	if success {
		sm.currentState = StateHealthy
		log.Info("健康检查: 快照重建成功，系统状态 -> [健康]")
	} else {
		log.Warn("健康检查: 快照重建失败，系统状态保持 [重建中] 以待重试")
	}
}
