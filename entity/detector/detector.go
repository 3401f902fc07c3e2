package detector

import (
	"sync"

	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/randengine"
)

const defaultClass = "fire_truck" // 脚本未指定类别时使用的默认目标类别

// ScriptedDetector 脚本检测器
// 功能：按配置的时间窗脚本给出各车道的应急车辆检测结果，并支持人工覆盖
// 说明：真实的视觉模型推理在系统之外接入entity.IDetector；脚本检测器用于
// 仿真与验证，帧内容不参与判断，只按运行时间命中时间窗。可配置单帧漏检
// 概率模拟推理抖动
type ScriptedDetector struct {
	ctx entity.ITaskContext

	script          []config.ScriptWindow
	missProbability float64
	generator       *randengine.Engine

	// 人工覆盖表，simulate接口写入、处理循环读取
	mtx       sync.RWMutex
	overrides map[int32]bool
}

// New 创建脚本检测器
// 功能：按检测配置初始化脚本与随机数引擎
// 参数：ctx-任务上下文
// 返回：初始化完成的脚本检测器实例
func New(ctx entity.ITaskContext) *ScriptedDetector {
	dc := ctx.RuntimeConfig().All.Detection
	return &ScriptedDetector{
		ctx:             ctx,
		script:          dc.Script,
		missProbability: dc.MissProbability,
		generator:       randengine.New(dc.Seed),
		overrides:       make(map[int32]bool),
	}
}

// Detect 单帧检测
// 功能：给出指定车道当前帧的应急车辆判断与检测元数据
// 参数：laneID-车道ID，frame-帧数据（脚本检测器不读取内容）
// 返回：是否检测到应急车辆、检测框元数据列表
// 说明：人工覆盖优先于脚本；命中脚本时间窗时按漏检概率可能返回未检出
func (d *ScriptedDetector) Detect(laneID int32, frame []byte) (bool, []entity.Detection) {
	d.mtx.RLock()
	active, overridden := d.overrides[laneID]
	d.mtx.RUnlock()

	class := defaultClass
	if !overridden {
		active = false
		t := d.ctx.Clock().T()
		for _, w := range d.script {
			if w.Lane == laneID && t >= w.Start && t < w.End {
				active = true
				if w.Class != "" {
					class = w.Class
				}
				break
			}
		}
		if active && d.missProbability > 0 && d.generator.PTrueSafe(d.missProbability) {
			// 模拟单帧漏检
			active = false
		}
	}

	if !active {
		return false, nil
	}
	// 置信度加入少量抖动，模拟推理输出
	conf := 0.5 + 0.5*d.generator.Float64Safe()
	return true, []entity.Detection{{Class: class, Confidence: conf}}
}

// SetOverride 人工覆盖某车道的检测结果
// 功能：active非nil时强制该车道的检测结果为指定值，nil时恢复脚本判断
// 参数：laneID-车道ID，active-覆盖值
func (d *ScriptedDetector) SetOverride(laneID int32, active *bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if active == nil {
		delete(d.overrides, laneID)
		return
	}
	d.overrides[laneID] = *active
	log.Infof("detection override for lane %d set to %v", laneID, *active)
}
