package signal

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/lane"
)

// SignalController 信号控制器
// 功能：决定固定车道集合中当前拥有通行权的车道，正常状态按周期轮转，
// 有车道上报应急车辆时进入抢占仲裁；多车道同时上报时按车道ID升序轮转优先权
// 说明：控制循环是相位的唯一写入者；ForceGreen与控制循环通过同一把仲裁锁串行化，
// 保证不会有两个调用方同时驱动冲突的相位切换。车道相位与时间字段是核心中
// 仅有的共享可变资源，争用频率低（~100ms一tick），采用粗粒度单锁保证不出现
// 撕裂的切换过程
type SignalController struct {
	ctx entity.ITaskContext

	lanes []*lane.Lane
	sink  entity.ISignalSink

	greenDuration  time.Duration
	yellowDuration time.Duration
	tickInterval   time.Duration

	// 仲裁锁，保护相位切换过程与currentGreenIndex
	mtx               sync.Mutex
	currentGreenIndex int // 正常轮转中当前（或最近）持有绿灯的车道下标

	// 意图字段，由检测反馈无锁写入、控制循环每tick原子读取
	emergencyMode atomic.Bool
	activeLanes   atomic.Pointer[[]int32] // 当前上报应急车辆的车道ID集合（升序）
	focusLane     atomic.Int32            // 应急仲裁中被授予优先权的车道ID，0为无
	lastSwitch    atomic.Int64            // 最近一次推进相位的时间戳（UnixNano），0为哨兵

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewController 创建信号控制器
// 功能：按配置初始化N条车道（全红）与控制参数
// 参数：ctx-任务上下文，sink-硬件输出
// 返回：初始化完成的信号控制器实例
func NewController(ctx entity.ITaskContext, sink entity.ISignalSink) *SignalController {
	rc := ctx.RuntimeConfig()
	c := &SignalController{
		ctx:            ctx,
		sink:           sink,
		greenDuration:  rc.GreenTime(),
		yellowDuration: rc.YellowTime(),
		tickInterval:   rc.TickTime(),
	}
	for id := int32(1); id <= rc.C.Lanes; id++ {
		c.lanes = append(c.lanes, lane.New(id))
	}
	return c
}

// Start 启动控制循环
// 功能：1号车道置绿、其余置红并向硬件做初始同步，随后启动后台控制循环
// 说明：重复调用未定义，由调用方保证Start/Stop成对出现
func (c *SignalController) Start() {
	c.mtx.Lock()
	c.emergencyMode.Store(false)
	c.focusLane.Store(0)
	c.activeLanes.Store(&[]int32{})
	for i, l := range c.lanes {
		if i == 0 {
			c.commit(l, entity.PhaseGreen)
		} else {
			c.commit(l, entity.PhaseRed)
		}
	}
	c.currentGreenIndex = 0
	c.lastSwitch.Store(time.Now().UnixNano())
	c.mtx.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.run()
	log.Infof("signal controller started with %d lanes", len(c.lanes))
}

// Stop 停止控制循环
// 功能：请求控制循环退出并阻塞等待其干净退出（协作式取消）
// 说明：循环只在tick间隙退出，循环内发起的清空过渡总能完成RED/GREEN交接后
// 才退出；并发的ForceGreen清空过渡不在此保证范围内（已知的突然停止边界）
func (c *SignalController) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
	log.Infof("signal controller stopped")
}

// States 获取相位快照
// 功能：返回所有车道最近一次提交后的相位，可与控制循环并发调用
// 说明：只读访问，不取仲裁锁，不会被进行中的清空等待阻塞
func (c *SignalController) States() map[int32]entity.Phase {
	states := make(map[int32]entity.Phase, len(c.lanes))
	for _, l := range c.lanes {
		states[l.ID()] = l.Phase()
	}
	return states
}

// EmergencyMode 是否处于应急抢占状态
func (c *SignalController) EmergencyMode() bool {
	return c.emergencyMode.Load()
}

// EmergencyFocus 应急仲裁中当前被授予优先权的车道ID，无则返回0
func (c *SignalController) EmergencyFocus() int32 {
	return c.focusLane.Load()
}

// UpdateEmergencyLanes 替换当前上报应急车辆的车道集合
// 功能：记录检测反馈的最新意图，本调用不执行任何相位切换
// 参数：lanes-当前检测到应急车辆的车道ID集合（可为空）
// 说明：不取仲裁锁，调用延迟与进行中的清空等待无关（检测反馈可能以
// 亚秒级频率调用）。两次调用竞争时按last-write-wins处理，控制循环每tick
// 原子读取最新集合。
//   - 集合由空变非空：进入应急状态，并写入哨兵时间戳使下一tick立即动作，
//     不等当前普通驻留结束；
//   - 集合由非空变空：退出应急状态，清除优先权焦点，从清除时刻起重新计满
//     一个完整绿灯窗口（不因该车道此前已持绿而缩短或延长）
func (c *SignalController) UpdateEmergencyLanes(lanes []int32) {
	ids := lo.Filter(lo.Uniq(lanes), func(id int32, _ int) bool {
		return id >= 1 && id <= int32(len(c.lanes))
	})
	slices.Sort(ids)
	c.activeLanes.Store(&ids)
	if len(ids) > 0 {
		if c.emergencyMode.CompareAndSwap(false, true) {
			c.lastSwitch.Store(0)
			log.Infof("emergency detected in lanes %v, initiating preemption", ids)
		}
	} else {
		if c.emergencyMode.CompareAndSwap(true, false) {
			c.focusLane.Store(0)
			c.lastSwitch.Store(time.Now().UnixNano())
			log.Infof("emergency cleared, resuming normal operation")
		}
	}
}

// ForceGreen 操作员强制指定车道转绿
// 功能：与控制循环经同一把仲裁锁串行化后执行收敛过程（必要时带黄灯清空），
// 并刷新驻留计时；不进入应急状态
// 参数：laneID-目标车道ID，越界时为no-op（视为操作失误，不报错）
func (c *SignalController) ForceGreen(laneID int32) {
	if laneID < 1 || laneID > int32(len(c.lanes)) {
		log.Warnf("force green: lane %d out of range, ignored", laneID)
		return
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	log.Infof("lane %d forced to green", laneID)
	c.ensureGreen(laneID)
	c.lastSwitch.Store(time.Now().UnixNano())
}

// run 控制循环
// 功能：以固定周期tick，每tick在仲裁锁保护下推进正常轮转或应急仲裁
func (c *SignalController) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick 单次控制决策
// 功能：根据当前状态推进正常轮转、单车道应急收敛或多车道应急轮转，
// 每次相关决策至多提交一次相位推进
// 说明：单个tick内的panic被捕获并记录后跳过，控制循环不因单次坏tick终止
func (c *SignalController) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("tick failed and skipped: %v", r)
		}
	}()
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.emergencyMode.Load() {
		if c.sinceSwitch() >= c.greenDuration {
			c.cycleNextLane()
		}
		return
	}

	active := c.loadActive()
	switch len(active) {
	case 0:
		// 集合置空与模式翻转之间的竞争窗口，等下一tick
	case 1:
		t := active[0]
		c.focusLane.Store(t)
		// 焦点未变时重跑收敛作幂等修复（目标已绿则不引入新的清空过渡）；
		// 哨兵时间戳在本tick已动作，无论是否发生切换都要消除
		if c.ensureGreen(t) || c.lastSwitch.Load() == 0 {
			c.lastSwitch.Store(time.Now().UnixNano())
		}
	default:
		c.arbitrate(active)
	}
}

// arbitrate 多车道应急轮转仲裁
// 功能：在升序排列的上报车道集合中维护粘性优先权焦点：
// 焦点失效（过期或首次进入）时取最小ID；驻留期满时推进到下一个ID并回绕；
// 其余情况焦点不变，仅做幂等修复
// 参数：active-当前上报车道ID集合（升序，长度>=2）
func (c *SignalController) arbitrate(active []int32) {
	focus := c.focusLane.Load()
	idx := lo.IndexOf(active, focus)
	if idx < 0 {
		focus = active[0]
	} else if c.sinceSwitch() >= c.greenDuration {
		focus = active[(idx+1)%len(active)]
	} else {
		c.ensureGreen(focus)
		return
	}
	c.focusLane.Store(focus)
	log.Infof("emergency round robin: granting priority to lane %d of %v", focus, active)
	c.ensureGreen(focus)
	c.lastSwitch.Store(time.Now().UnixNano())
}

// cycleNextLane 正常轮转推进
// 功能：当前绿灯车道经黄灯清空转红后，按环形顺序将下一车道置绿并刷新驻留计时
func (c *SignalController) cycleNextLane() {
	cur := c.lanes[c.currentGreenIndex]
	if cur.Phase() == entity.PhaseGreen {
		c.commit(cur, entity.PhaseYellow)
		time.Sleep(c.yellowDuration)
		c.commit(cur, entity.PhaseRed)
	}
	c.currentGreenIndex = (c.currentGreenIndex + 1) % len(c.lanes)
	next := c.lanes[c.currentGreenIndex]
	c.commit(next, entity.PhaseGreen)
	c.lastSwitch.Store(time.Now().UnixNano())
}

// ensureGreen 收敛过程
// 功能：使目标车道转绿、其余车道转红，至多执行一次安全清空序列
// 参数：target-目标车道ID
// 返回：是否提交了清空/授予切换（目标原本已绿的纯修复返回false）
// 算法说明：
//  1. 目标已绿：其余非红车道直接置红（修复路径，容忍外部漂移）后返回，
//     不引入清空延迟；
//  2. 否则对当前持绿车道（I1成立时至多一条）执行绿->黄、驻留黄灯时长、
//     黄->红，每次相位变化都向硬件输出；其余非红车道直接置红；
//  3. 目标置绿并输出，最后将currentGreenIndex同步到目标位置，保证应急
//     结束后正常轮转从正确位置恢复。
//
// 说明：黄灯驻留是持有仲裁锁的真实等待，期间其他切换请求被阻塞——这是
// 有意设计的背压，保证不会在未完成的清空之上叠加第二个切换
func (c *SignalController) ensureGreen(target int32) bool {
	idx := int(target) - 1
	if idx < 0 || idx >= len(c.lanes) {
		return false
	}
	tl := c.lanes[idx]
	if tl.Phase() == entity.PhaseGreen {
		for _, l := range c.lanes {
			if l != tl && l.Phase() != entity.PhaseRed {
				c.commit(l, entity.PhaseRed)
			}
		}
		c.currentGreenIndex = idx
		return false
	}
	for _, l := range c.lanes {
		if l != tl && l.Phase() == entity.PhaseGreen {
			log.Infof("switching lane %d to YELLOW (clearance)", l.ID())
			c.commit(l, entity.PhaseYellow)
			time.Sleep(c.yellowDuration)
			c.commit(l, entity.PhaseRed)
		}
	}
	for _, l := range c.lanes {
		if l != tl && l.Phase() != entity.PhaseRed {
			c.commit(l, entity.PhaseRed)
		}
	}
	c.commit(tl, entity.PhaseGreen)
	c.currentGreenIndex = idx
	return true
}

// commit 提交一次相位变化
// 功能：写入车道相位并向硬件输出一次通知（每次提交恰好一次，不按tick重复）
func (c *SignalController) commit(l *lane.Lane, p entity.Phase) {
	l.SetSignal(p)
	c.sink.SendUpdate(l.ID(), p)
}

// sinceSwitch 距上一次相位推进经过的时间
// 功能：哨兵时间戳（0）返回无穷大，使调用方立即动作
func (c *SignalController) sinceSwitch() time.Duration {
	last := c.lastSwitch.Load()
	if last == 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Since(time.Unix(0, last))
}

// loadActive 原子读取当前上报车道集合
func (c *SignalController) loadActive() []int32 {
	if p := c.activeLanes.Load(); p != nil {
		return *p
	}
	return nil
}
