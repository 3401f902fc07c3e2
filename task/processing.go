package task

import (
	"flag"
	"time"

	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

var (
	frameInterval     = flag.Float64("proc.frame_interval", 0.033, "处理循环周期（秒），约30FPS")
	inferenceEvery    = flag.Int64("proc.inference_every", 3, "每隔多少帧做一次推理（节省算力）")
	heartbeatInterval = flag.Int64("log.heartbeat_interval", 1000, "心跳日志间隔步数")
)

// startProcessing 启动处理循环
func (ctx *Context) startProcessing() {
	ctx.procStopCh = make(chan struct{})
	ctx.procDoneCh = make(chan struct{})
	go ctx.processing()
	log.Infof("processing loop started")
}

// stopProcessing 停止处理循环并等待其退出
func (ctx *Context) stopProcessing() {
	close(ctx.procStopCh)
	<-ctx.procDoneCh
}

// processing 处理循环
// 功能：按固定周期取各车道最新帧，按配置的间隔做推理，并把当前上报应急
// 车辆的车道集合同步给信号控制器
// 说明：检测反馈以帧为粒度推进（亚秒级频率，低于控制循环tick频率也可），
// 每轮推理后整集合替换控制器中的意图，不做增量
func (ctx *Context) processing() {
	defer close(ctx.procDoneCh)
	ticker := time.NewTicker(time.Duration(*frameInterval * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.procStopCh:
			return
		case <-ticker.C:
			ctx.clk.InternalStep++
			if ctx.clk.InternalStep%*heartbeatInterval == 0 {
				log.Infof("STEP: %d (%s)", ctx.clk.InternalStep, ctx.clk)
			}
			if ctx.clk.InternalStep%*inferenceEvery != 0 {
				continue
			}
			ctx.inferOnce()
		}
	}
}

// inferOnce 单轮推理
// 功能：对有帧的车道逐一推理，更新检测元数据并替换控制器的应急车道集合
func (ctx *Context) inferOnce() {
	flagged := make([]int32, 0)
	latest := make(map[int32][]entity.Detection)
	for id := int32(1); id <= ctx.runtimeConfig.C.Lanes; id++ {
		frame := ctx.videoManager.Frame(id)
		if frame == nil {
			continue
		}
		emergency, dets := ctx.det.Detect(id, frame)
		latest[id] = dets
		for _, d := range dets {
			log.Debugf("lane %d: detected %s with confidence %.2f", id, d.Class, d.Confidence)
		}
		if emergency {
			flagged = append(flagged, id)
		}
	}

	ctx.detMtx.Lock()
	for id, dets := range latest {
		ctx.detections[id] = dets
	}
	ctx.detMtx.Unlock()

	ctx.signalController.UpdateEmergencyLanes(flagged)
}
