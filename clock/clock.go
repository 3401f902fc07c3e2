package clock

import (
	"fmt"
	"time"
)

// Clock 仿真运行时钟
// 功能：记录本次仿真运行自启动以来的墙上时间与处理步数
// 说明：控制器内部的相位计时使用各自的时间戳，这里只服务于日志心跳、
// 检测脚本的时间窗判断与输出记录的时间标注
type Clock struct {
	startTime time.Time

	InternalStep int64 // 当前处理步数（由处理循环推进）
}

// New 创建新的时钟实例
// 功能：以当前时刻为起点初始化时钟
// 返回：初始化完成的时钟实例
func New() *Clock {
	c := &Clock{}
	c.Init()
	return c
}

// Init 初始化时钟状态
// 功能：重置起点时刻与步数，仿真重置时复用
func (c *Clock) Init() {
	c.startTime = time.Now()
	c.InternalStep = 0
}

// T 获取当前运行时间
// 功能：返回自运行开始经过的秒数
// 返回：运行时间（秒，浮点）
func (c *Clock) T() float64 {
	return time.Since(c.startTime).Seconds()
}

// String 获取时钟的字符串表示
// 功能：将当前运行时间格式化为可读的字符串（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T()
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
