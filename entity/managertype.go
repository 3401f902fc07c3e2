package entity

// ISignalController 信号控制器接口
// 功能：决定固定车道集合中当前拥有通行权的车道，支持普通轮转与应急抢占两种工作状态
type ISignalController interface {
	// 启动控制循环，1号车道置绿，其余置红
	Start()
	// 请求控制循环退出并阻塞等待其干净退出
	Stop()
	// 获取最近一次提交后的相位快照，可与控制循环并发调用
	States() map[int32]Phase
	// 替换当前上报应急车辆的车道集合（last-write-wins，不加仲裁锁）
	UpdateEmergencyLanes(lanes []int32)
	// 操作员强制指定车道转绿（带清空过渡），越界车道ID为no-op
	ForceGreen(laneID int32)
	// 是否处于应急抢占状态
	EmergencyMode() bool
	// 应急仲裁中当前被授予优先权的车道ID，无则返回0
	EmergencyFocus() int32
}

// IVideoManager 视频源管理器接口
// 功能：管理各车道的帧来源，控制器本身不接触帧数据
type IVideoManager interface {
	// 启动所有车道的取帧循环
	StartAll()
	// 停止所有车道的取帧循环
	StopAll()
	// 停止并移除指定车道的视频源
	Stop(laneID int32)
	// 热替换指定车道的视频源
	UpdateSource(laneID int32, source string)
	// 获取指定车道最新一帧，无可用源时返回nil
	Frame(laneID int32) []byte
	// 当前已配置视频源的车道ID列表（升序）
	ReadyLanes() []int32
	// 当前各车道的视频源路径
	Sources() map[int32]string
	// 停止并移除所有视频源
	Clear()
}

// IDetector 应急车辆检测接口
// 功能：对一帧做出"该车道是否存在应急车辆"的判断并给出检测元数据
// 说明：真实的视觉模型推理在系统之外，通过该接口接入
type IDetector interface {
	Detect(laneID int32, frame []byte) (emergency bool, detections []Detection)
	// 人工覆盖某车道的检测结果（模拟应急事件）；active为nil时取消覆盖
	SetOverride(laneID int32, active *bool)
}
