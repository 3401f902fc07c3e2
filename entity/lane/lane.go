package lane

import (
	"sync/atomic"

	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

// Lane 信号化车道
// 功能：保存一条车道的标识与当前信号相位
// 说明：标识构造后不可变；相位是唯一可变字段，且只由信号控制器写入。
// 相位以原子量保存，读取方（遥测广播等）总能看到最近一次提交的相位，
// 不会被进行中的清空等待阻塞
type Lane struct {
	id    int32
	phase atomic.Int32
}

// New 创建车道
// 功能：以指定ID创建车道，初始相位为红灯
// 参数：id-车道ID（1..N）
// 返回：初始化完成的车道实例
func New(id int32) *Lane {
	l := &Lane{id: id}
	l.phase.Store(int32(entity.PhaseRed))
	return l
}

// ID 获取车道ID
func (l *Lane) ID() int32 {
	return l.id
}

// Phase 获取当前相位
// 功能：返回最近一次提交的信号相位，可与控制循环并发调用
func (l *Lane) Phase() entity.Phase {
	return entity.Phase(l.phase.Load())
}

// SetSignal 写入相位
// 功能：提交新的信号相位
// 说明：仅允许信号控制器在持有仲裁锁时调用
func (l *Lane) SetSignal(p entity.Phase) {
	l.phase.Store(int32(p))
}
