package task

import (
	"os"
	"os/signal"
	"syscall"
)

// Run 运行仿真任务
// 功能：启动对外服务后阻塞运行，收到SIGINT/SIGTERM后按序优雅停止
// 说明：配置中已给出全部车道视频源时系统立即启动，否则等待上传齐备后
// 由上传接口自动启动
func (ctx *Context) Run() {
	ctx.webServer.Start()

	if err := ctx.StartSystem(); err != nil {
		log.Infof("waiting for video uploads: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutting down")

	ctx.webServer.Stop()
	if ctx.started.CompareAndSwap(true, false) {
		ctx.stopProcessing()
		ctx.signalController.Stop()
		ctx.videoManager.StopAll()
	}
	if ctx.recorder != nil {
		ctx.recorder.Close()
	}
}
