package signal

import (
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

// LogSink 日志硬件输出
// 功能：将每次提交的相位变化写入日志，替代真实的串口/GPIO输出通道
// 说明：接入真实执行机构时实现entity.ISignalSink并在构造控制器时替换即可，
// 无需改动控制器逻辑
type LogSink struct{}

// NewLogSink 创建日志硬件输出
func NewLogSink() *LogSink {
	return &LogSink{}
}

// SendUpdate 输出相位变化
func (s *LogSink) SendUpdate(laneID int32, phase entity.Phase) {
	log.Infof("[HARDWARE OUT] lane %d switched to %s", laneID, phase)
}

type multiSink []entity.ISignalSink

// NewMultiSink 创建扇出硬件输出
// 功能：将一次相位变化按顺序通知多个下游输出（日志、记录器等）
func NewMultiSink(sinks ...entity.ISignalSink) entity.ISignalSink {
	return multiSink(sinks)
}

// SendUpdate 依次通知所有下游输出
func (s multiSink) SendUpdate(laneID int32, phase entity.Phase) {
	for _, sink := range s {
		sink.SendUpdate(laneID, phase)
	}
}
