package config

// Input 指定各车道视频来源的配置项
// 功能：定义每条车道的帧来源与上传文件的存放位置
// 说明：键为"lane1"~"laneN"，值为视频文件或帧目录路径；未配置的车道没有视频源
type Input struct {
	Sources     map[string]string `yaml:"sources,omitempty"`      // 车道->视频源路径
	SourcesFile string            `yaml:"sources_file,omitempty"` // 视频源持久化文件（上传后回写）
	UploadDir   string            `yaml:"upload_dir,omitempty"`   // 上传文件存放目录
}

// Control 信号控制配置
// 功能：定义信号控制器的核心控制参数
// 说明：车道数与各相位时长在构造时固定，运行期间不可协商
type Control struct {
	Lanes          int32   `yaml:"lanes,omitempty"`           // 车道数N（默认4）
	GreenDuration  float64 `yaml:"green_duration,omitempty"`  // 绿灯时长（秒，默认10）
	YellowDuration float64 `yaml:"yellow_duration,omitempty"` // 黄灯清空时长（秒，默认2）
	TickInterval   float64 `yaml:"tick_interval,omitempty"`   // 控制循环周期（秒，默认0.1）
}

// ScriptWindow 脚本检测器的单个时间窗
// 功能：定义某车道在某时间段内"检测到"应急车辆
type ScriptWindow struct {
	Lane  int32   `yaml:"lane"`            // 车道ID
	Start float64 `yaml:"start"`           // 窗口开始时间（秒，自运行开始计）
	End   float64 `yaml:"end"`             // 窗口结束时间（秒）
	Class string  `yaml:"class,omitempty"` // 目标类别名（默认fire_truck）
}

// Detection 检测反馈配置
// 功能：定义脚本检测器的行为参数
type Detection struct {
	Script          []ScriptWindow `yaml:"script,omitempty"`           // 检测时间窗脚本
	MissProbability float64        `yaml:"miss_probability,omitempty"` // 单帧漏检概率[0,1)
	Seed            uint64         `yaml:"seed,omitempty"`             // 随机数种子
}

// Output 输出配置
// 功能：定义相位变化记录的MongoDB输出位置
// 说明：URI为空则禁用输出记录
type Output struct {
	URI string `yaml:"uri,omitempty"` // MongoDB连接字符串
	DB  string `yaml:"db,omitempty"`  // 数据库名
	Col string `yaml:"col,omitempty"` // 集合名
}

// Web 对外服务配置
type Web struct {
	Listen string `yaml:"listen,omitempty"` // HTTP监听地址（默认:8000）
}

// Config YAML配置文件的根结构
// 功能：定义整个仿真系统的配置结构
type Config struct {
	Input     Input     `yaml:"input"`               // 输入
	Control   Control   `yaml:"control"`             // 信号控制
	Detection Detection `yaml:"detection,omitempty"` // 检测反馈
	Output    Output    `yaml:"output,omitempty"`    // 输出
	Web       Web       `yaml:"web,omitempty"`       // 对外服务
}
