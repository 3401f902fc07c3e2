package web

import (
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

// 依赖倒置，表达对外服务对仿真系统的接口需求

// ISystem 仿真系统接口
type ISystem interface {
	// 信号控制器
	SignalController() entity.ISignalController
	// 视频源管理器
	VideoManager() entity.IVideoManager
	// 检测反馈
	Detector() entity.IDetector
	// 各车道最近一次推理的检测元数据
	Detections() map[int32][]entity.Detection
	// 车道数N
	Lanes() int32
	// 系统（视频源+控制器+处理循环）是否已启动
	Started() bool
	// 启动整个系统；车道视频源不全时返回错误
	StartSystem() error
	// 停止系统并清空所有视频源与检测状态
	ResetSystem()
	// 上传文件的存放目录
	UploadDir() string
	// 上传后挂载车道视频源（热替换+持久化+齐备时自动启动）
	AttachSource(laneID int32, path string)
	// 移除车道视频源
	DetachSource(laneID int32)
}
