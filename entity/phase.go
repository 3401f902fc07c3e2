package entity

// Phase 车道信号相位
// 功能：表示一条车道当前的信号指示，取值为红、黄、绿三种之一
// 说明：所有相位切换处必须对三种取值做穷举处理，禁止使用字符串表示相位
type Phase int32

const (
	PhaseRed    Phase = iota // 红灯
	PhaseYellow              // 黄灯（清空相位）
	PhaseGreen               // 绿灯
)

// String 获取相位的字符串表示
// 功能：将相位转换为对外输出（遥测、硬件指令）使用的字符串
// 返回：RED/YELLOW/GREEN，未知取值返回UNKNOWN
func (p Phase) String() string {
	switch p {
	case PhaseRed:
		return "RED"
	case PhaseYellow:
		return "YELLOW"
	case PhaseGreen:
		return "GREEN"
	default:
		return "UNKNOWN"
	}
}

// Detection 单个检测框的元数据
// 功能：描述检测反馈中一个目标的类别与置信度
// 说明：推理过程本身在本系统之外，这里只保留其输出的元数据
type Detection struct {
	Class      string  `json:"class"`      // 目标类别名
	Confidence float64 `json:"confidence"` // 置信度[0,1]
}
