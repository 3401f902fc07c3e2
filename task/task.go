package task

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/clock"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/detector"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/signal"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/videosource"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/output"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/web"
)

// Context 仿真任务上下文
// 功能：包含一次仿真运行的所有变量和状态，替代全局变量
// 说明：管理信号控制器、视频源、检测反馈、处理循环与对外服务；
// 上下文在一次运行开始时构造一次并传入所有需要它的组件，支持干净重置
type Context struct {

	// 任务名
	job string
	// 运行时钟
	clk *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// 信号控制器
	signalController entity.ISignalController
	// 视频源管理器
	videoManager entity.IVideoManager
	// 检测反馈
	det entity.IDetector
	// 相位变化记录器（可选）
	recorder *output.Recorder
	// 对外服务
	webServer *web.Server

	// 系统（视频源+控制器+处理循环）是否已启动
	started atomic.Bool

	// 各车道最近一次推理的检测元数据
	detMtx     sync.RWMutex
	detections map[int32][]entity.Detection

	// 处理循环控制
	procStopCh chan struct{}
	procDoneCh chan struct{}

	// 视频源持久化文件的回写互斥
	sourcesMtx sync.Mutex
}

// NewContext 创建新的仿真任务上下文
// 功能：初始化仿真系统的所有组件
// 参数：job-任务名称，c-配置对象
// 返回：初始化完成的Context实例
// 说明：配置了输出URI时接入相位变化记录器；记录器连接失败只告警，
// 不阻止仿真运行
func NewContext(job string, c config.Config) *Context {
	ctx := &Context{
		job:           job,
		clk:           clock.New(),
		runtimeConfig: config.NewRuntimeConfig(c),
		detections:    make(map[int32][]entity.Detection),
	}

	sinks := []entity.ISignalSink{signal.NewLogSink()}
	if c.Output.URI != "" {
		if recorder, err := output.NewRecorder(ctx); err != nil {
			log.Warnf("transition recorder disabled: %v", err)
		} else {
			ctx.recorder = recorder
			sinks = append(sinks, recorder)
		}
	}
	ctx.signalController = signal.NewController(ctx, signal.NewMultiSink(sinks...))
	ctx.videoManager = videosource.NewManager(ctx)
	ctx.det = detector.New(ctx)
	ctx.webServer = web.NewServer(ctx, ctx.runtimeConfig.All.Web.Listen)

	return ctx
}

// RuntimeConfig 运行时配置
func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Clock 运行时钟
func (ctx *Context) Clock() *clock.Clock {
	return ctx.clk
}

// JobName 任务名
func (ctx *Context) JobName() string {
	return ctx.job
}

// SignalController 信号控制器
func (ctx *Context) SignalController() entity.ISignalController {
	return ctx.signalController
}

// VideoManager 视频源管理器
func (ctx *Context) VideoManager() entity.IVideoManager {
	return ctx.videoManager
}

// Detector 检测反馈
func (ctx *Context) Detector() entity.IDetector {
	return ctx.det
}

// Detections 各车道最近一次推理的检测元数据
// 功能：返回检测元数据的快照，可与处理循环并发调用
func (ctx *Context) Detections() map[int32][]entity.Detection {
	ctx.detMtx.RLock()
	defer ctx.detMtx.RUnlock()
	return lo.Assign(map[int32][]entity.Detection{}, ctx.detections)
}

// Lanes 车道数N
func (ctx *Context) Lanes() int32 {
	return ctx.runtimeConfig.C.Lanes
}

// Started 系统是否已启动
func (ctx *Context) Started() bool {
	return ctx.started.Load()
}

// UploadDir 上传文件的存放目录
func (ctx *Context) UploadDir() string {
	return ctx.runtimeConfig.All.Input.UploadDir
}

// StartSystem 启动整个系统
// 功能：启动视频源、信号控制器与处理循环
// 返回：车道视频源不全时返回错误
func (ctx *Context) StartSystem() error {
	ready := ctx.videoManager.ReadyLanes()
	if int32(len(ready)) < ctx.runtimeConfig.C.Lanes {
		return fmt.Errorf("need videos for all %d lanes, currently %d ready",
			ctx.runtimeConfig.C.Lanes, len(ready))
	}
	if !ctx.started.CompareAndSwap(false, true) {
		return nil
	}
	log.Infof("starting system with all %d lane videos", ctx.runtimeConfig.C.Lanes)
	ctx.clk.Init()
	ctx.videoManager.StartAll()
	ctx.signalController.Start()
	ctx.startProcessing()
	return nil
}

// ResetSystem 停止系统并清空所有视频源与检测状态
// 功能：处理循环、控制器、视频源全部停止，检测覆盖与元数据清空，
// 持久化的视频源表清零；重置后可再次上传并启动
func (ctx *Context) ResetSystem() {
	if ctx.started.CompareAndSwap(true, false) {
		ctx.stopProcessing()
		ctx.signalController.Stop()
	}
	ctx.videoManager.Clear()
	for id := int32(1); id <= ctx.runtimeConfig.C.Lanes; id++ {
		ctx.det.SetOverride(id, nil)
	}
	ctx.detMtx.Lock()
	ctx.detections = make(map[int32][]entity.Detection)
	ctx.detMtx.Unlock()
	ctx.persistSources()
	log.Infof("system fully reset and all videos cleared")
}

// AttachSource 上传后挂载车道视频源
// 功能：热替换该车道的视频源并回写持久化文件；所有车道齐备且系统未启动时
// 自动启动系统
func (ctx *Context) AttachSource(laneID int32, path string) {
	ctx.videoManager.UpdateSource(laneID, path)
	ctx.persistSources()
	if !ctx.started.Load() &&
		int32(len(ctx.videoManager.ReadyLanes())) == ctx.runtimeConfig.C.Lanes {
		if err := ctx.StartSystem(); err != nil {
			log.Errorf("auto start failed: %v", err)
		}
	}
}

// DetachSource 移除车道视频源
func (ctx *Context) DetachSource(laneID int32) {
	ctx.videoManager.Stop(laneID)
	ctx.detMtx.Lock()
	delete(ctx.detections, laneID)
	ctx.detMtx.Unlock()
	ctx.persistSources()
}

// persistSources 回写视频源持久化文件
// 功能：将当前各车道的视频源路径以JSON形式写入配置的持久化文件，
// 便于重启后恢复；写失败只告警
func (ctx *Context) persistSources() {
	ctx.sourcesMtx.Lock()
	defer ctx.sourcesMtx.Unlock()
	table := lo.MapEntries(ctx.videoManager.Sources(), func(id int32, path string) (string, string) {
		return fmt.Sprintf("lane%d", id), path
	})
	data, err := json.Marshal(table)
	if err == nil {
		err = os.WriteFile(ctx.runtimeConfig.All.Input.SourcesFile, data, 0o644)
	}
	if err != nil {
		log.Warnf("cannot persist sources: %v", err)
	}
}
