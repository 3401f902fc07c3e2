package videosource

import (
	"slices"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

// Manager 视频源管理器
// 功能：管理各车道的帧来源，支持启停、热替换与移除
// 说明：信号控制器不接触帧数据，帧只流向检测反馈与对外的帧流接口
type Manager struct {
	ctx entity.ITaskContext

	mtx     sync.RWMutex
	sources map[int32]*fileSource
}

// NewManager 创建视频源管理器
// 功能：按配置为各车道创建视频源（不启动）
// 参数：ctx-任务上下文
// 返回：初始化完成的视频源管理器实例
func NewManager(ctx entity.ITaskContext) *Manager {
	m := &Manager{
		ctx:     ctx,
		sources: make(map[int32]*fileSource),
	}
	for laneID, source := range ctx.RuntimeConfig().LaneSources() {
		m.sources[laneID] = newFileSource(laneID, source)
	}
	return m
}

// StartAll 启动所有车道的取帧循环
func (m *Manager) StartAll() {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	parallel.GoFor(lo.Values(m.sources), func(s *fileSource) { s.start() })
}

// StopAll 停止所有车道的取帧循环
func (m *Manager) StopAll() {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	parallel.GoFor(lo.Values(m.sources), func(s *fileSource) { s.stop() })
}

// Stop 停止并移除指定车道的视频源
func (m *Manager) Stop(laneID int32) {
	m.mtx.Lock()
	s, ok := m.sources[laneID]
	if ok {
		delete(m.sources, laneID)
	}
	m.mtx.Unlock()
	if ok {
		s.stop()
		log.Infof("lane %d: video source removed", laneID)
	}
}

// UpdateSource 热替换指定车道的视频源
// 功能：停止旧视频源（如有），创建并立即启动新视频源
// 参数：laneID-车道ID，source-新视频源路径
func (m *Manager) UpdateSource(laneID int32, source string) {
	m.mtx.Lock()
	old := m.sources[laneID]
	s := newFileSource(laneID, source)
	m.sources[laneID] = s
	m.mtx.Unlock()

	if old != nil {
		old.stop()
	}
	s.start()
	log.Infof("lane %d: video source updated to %s", laneID, source)
}

// Frame 获取指定车道最新一帧
// 功能：返回该车道当前帧，无视频源时返回nil
func (m *Manager) Frame(laneID int32) []byte {
	m.mtx.RLock()
	s, ok := m.sources[laneID]
	m.mtx.RUnlock()
	if !ok {
		return nil
	}
	return s.read()
}

// ReadyLanes 当前已配置视频源的车道ID列表（升序）
func (m *Manager) ReadyLanes() []int32 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	lanes := lo.Keys(m.sources)
	slices.Sort(lanes)
	return lanes
}

// Sources 当前各车道的视频源路径
func (m *Manager) Sources() map[int32]string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return lo.MapValues(m.sources, func(s *fileSource, _ int32) string { return s.source })
}

// Clear 停止并移除所有视频源
func (m *Manager) Clear() {
	m.mtx.Lock()
	sources := lo.Values(m.sources)
	m.sources = make(map[int32]*fileSource)
	m.mtx.Unlock()
	parallel.GoFor(sources, func(s *fileSource) { s.stop() })
}
