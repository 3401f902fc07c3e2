package config

import (
	"fmt"
	"time"
)

// 各控制参数的默认值，与原型机保持一致
const (
	DefaultLanes          = 4
	DefaultGreenDuration  = 10.0
	DefaultYellowDuration = 2.0
	DefaultTickInterval   = 0.1

	DefaultListen      = ":8000"
	DefaultUploadDir   = "uploads"
	DefaultSourcesFile = "sources.json"
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，补全默认值后供各组件使用
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 信号控制配置（已补全默认值）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，对未指定的控制参数填入默认值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	if rc.C.Lanes <= 0 {
		rc.C.Lanes = DefaultLanes
	}
	if rc.C.GreenDuration <= 0 {
		rc.C.GreenDuration = DefaultGreenDuration
	}
	if rc.C.YellowDuration <= 0 {
		rc.C.YellowDuration = DefaultYellowDuration
	}
	if rc.C.TickInterval <= 0 {
		rc.C.TickInterval = DefaultTickInterval
	}
	if rc.All.Input.UploadDir == "" {
		rc.All.Input.UploadDir = DefaultUploadDir
	}
	if rc.All.Input.SourcesFile == "" {
		rc.All.Input.SourcesFile = DefaultSourcesFile
	}
	if rc.All.Web.Listen == "" {
		rc.All.Web.Listen = DefaultListen
	}

	return rc
}

// GreenTime 获取绿灯时长
func (rc *RuntimeConfig) GreenTime() time.Duration {
	return time.Duration(rc.C.GreenDuration * float64(time.Second))
}

// YellowTime 获取黄灯清空时长
func (rc *RuntimeConfig) YellowTime() time.Duration {
	return time.Duration(rc.C.YellowDuration * float64(time.Second))
}

// TickTime 获取控制循环周期
func (rc *RuntimeConfig) TickTime() time.Duration {
	return time.Duration(rc.C.TickInterval * float64(time.Second))
}

// LaneSources 获取车道到视频源路径的映射
// 功能：将配置中"laneN"形式的键解析为车道ID，越界或无法解析的键被忽略
// 返回：车道ID->视频源路径
func (rc *RuntimeConfig) LaneSources() map[int32]string {
	sources := make(map[int32]string)
	for key, path := range rc.All.Input.Sources {
		var id int32
		if _, err := fmt.Sscanf(key, "lane%d", &id); err != nil {
			continue
		}
		if id < 1 || id > rc.C.Lanes {
			continue
		}
		sources[id] = path
	}
	return sources
}
