package detector_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/clock"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/detector"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/config"
)

type testContext struct {
	rc  *config.RuntimeConfig
	clk *clock.Clock
}

func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *testContext) Clock() *clock.Clock                  { return c.clk }
func (c *testContext) JobName() string                      { return "test" }

func newTestContext(dc config.Detection) *testContext {
	return &testContext{
		rc:  config.NewRuntimeConfig(config.Config{Detection: dc}),
		clk: clock.New(),
	}
}

func TestScriptWindowHit(t *testing.T) {
	// 时钟刚初始化，T()接近0，命中[0,1000)的窗口
	d := detector.New(newTestContext(config.Detection{
		Script: []config.ScriptWindow{
			{Lane: 2, Start: 0, End: 1000, Class: "ambulance"},
		},
	}))

	active, detections := d.Detect(2, nil)
	assert.True(t, active)
	require.Len(t, detections, 1)
	assert.Equal(t, "ambulance", detections[0].Class)
	assert.GreaterOrEqual(t, detections[0].Confidence, 0.5)
	assert.Less(t, detections[0].Confidence, 1.0)

	// 其他车道不命中
	active, detections = d.Detect(1, nil)
	assert.False(t, active)
	assert.Empty(t, detections)
}

func TestScriptWindowMiss(t *testing.T) {
	// 窗口在遥远的未来，任何车道都不命中
	d := detector.New(newTestContext(config.Detection{
		Script: []config.ScriptWindow{
			{Lane: 1, Start: 3600, End: 7200},
		},
	}))
	active, detections := d.Detect(1, nil)
	assert.False(t, active)
	assert.Empty(t, detections)
}

func TestDefaultClass(t *testing.T) {
	d := detector.New(newTestContext(config.Detection{
		Script: []config.ScriptWindow{
			{Lane: 3, Start: 0, End: 1000},
		},
	}))
	active, detections := d.Detect(3, nil)
	assert.True(t, active)
	require.Len(t, detections, 1)
	assert.Equal(t, "fire_truck", detections[0].Class)
}

// 漏检概率为1时所有命中都被抑制
func TestMissProbability(t *testing.T) {
	d := detector.New(newTestContext(config.Detection{
		Script: []config.ScriptWindow{
			{Lane: 1, Start: 0, End: 1000},
		},
		MissProbability: 1,
	}))
	for i := 0; i < 100; i++ {
		active, _ := d.Detect(1, nil)
		assert.False(t, active)
	}
}

func TestOverride(t *testing.T) {
	d := detector.New(newTestContext(config.Detection{
		Script: []config.ScriptWindow{
			{Lane: 1, Start: 0, End: 1000},
		},
	}))

	// 覆盖为true：无脚本窗口的车道也返回检出
	d.SetOverride(4, lo.ToPtr(true))
	active, detections := d.Detect(4, nil)
	assert.True(t, active)
	require.Len(t, detections, 1)
	assert.Equal(t, "fire_truck", detections[0].Class)

	// 覆盖为false：优先于脚本命中
	d.SetOverride(1, lo.ToPtr(false))
	active, _ = d.Detect(1, nil)
	assert.False(t, active)

	// 覆盖清除后恢复脚本判断
	d.SetOverride(1, nil)
	active, _ = d.Detect(1, nil)
	assert.True(t, active)
	d.SetOverride(4, nil)
	active, _ = d.Detect(4, nil)
	assert.False(t, active)
}
