package entity

// 依赖倒置，表达信号控制器对车道与硬件实现的接口需求

// ILaneSignalSetter 给信号控制器提供的车道相位写入接口
type ILaneSignalSetter interface {
	ID() int32         // 车道ID
	Phase() Phase      // 当前相位
	SetSignal(p Phase) // 写入相位（仅允许信号控制器调用）
}

// ISignalSink 硬件输出接口
// 功能：每次提交相位变化时调用一次，按提交顺序通知外部执行机构
// 说明：单向通知，不读取返回结果；失败不反馈到控制器逻辑中
type ISignalSink interface {
	SendUpdate(laneID int32, phase Phase)
}
