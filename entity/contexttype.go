package entity

import (
	"github.com/tsinghua-fib-lab/preemption-sim-oss/clock"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/config"
)

// ITaskContext 仿真任务上下文接口
// 功能：向各组件提供本次仿真运行的共享资源（配置、时钟、任务名）
// 说明：替代全局变量，上下文对象在一次仿真运行开始时构造一次并传入所有组件
type ITaskContext interface {
	// 运行时配置
	RuntimeConfig() *config.RuntimeConfig
	// 运行时钟（自运行开始的墙上时间）
	Clock() *clock.Clock
	// 任务名
	JobName() string
}
