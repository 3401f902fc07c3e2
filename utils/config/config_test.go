package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/utils/config"
	"gopkg.in/yaml.v2"
)

const testConfig = `
input:
  sources:
    lane1: videos/north.mp4
    lane3: frames/east/
  upload_dir: /tmp/uploads
control:
  lanes: 6
  green_duration: 5
  yellow_duration: 1.5
detection:
  script:
    - lane: 2
      start: 10
      end: 20
      class: ambulance
  miss_probability: 0.1
output:
  uri: mongodb://localhost:27017/
  db: preemption
  col: transitions
web:
  listen: ":9000"
`

func TestUnmarshal(t *testing.T) {
	var c config.Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(testConfig), &c))
	assert.EqualValues(t, 6, c.Control.Lanes)
	assert.Equal(t, 5.0, c.Control.GreenDuration)
	assert.Equal(t, 1.5, c.Control.YellowDuration)
	assert.Len(t, c.Detection.Script, 1)
	assert.Equal(t, "ambulance", c.Detection.Script[0].Class)
	assert.Equal(t, "mongodb://localhost:27017/", c.Output.URI)
	assert.Equal(t, ":9000", c.Web.Listen)
}

// 未知键应当被拒绝而不是静默忽略
func TestUnmarshalStrictRejectsUnknownKey(t *testing.T) {
	var c config.Config
	err := yaml.UnmarshalStrict([]byte("control:\n  lane_count: 4\n"), &c)
	assert.Error(t, err)
}

func TestRuntimeConfigDefaults(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{})
	assert.EqualValues(t, config.DefaultLanes, rc.C.Lanes)
	assert.Equal(t, 10*time.Second, rc.GreenTime())
	assert.Equal(t, 2*time.Second, rc.YellowTime())
	assert.Equal(t, 100*time.Millisecond, rc.TickTime())
	assert.Equal(t, config.DefaultListen, rc.All.Web.Listen)
	assert.Equal(t, config.DefaultUploadDir, rc.All.Input.UploadDir)
	assert.Equal(t, config.DefaultSourcesFile, rc.All.Input.SourcesFile)
}

func TestRuntimeConfigKeepsExplicitValues(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{Lanes: 2, GreenDuration: 0.5, YellowDuration: 0.25, TickInterval: 0.05},
		Web:     config.Web{Listen: ":9000"},
	})
	assert.EqualValues(t, 2, rc.C.Lanes)
	assert.Equal(t, 500*time.Millisecond, rc.GreenTime())
	assert.Equal(t, 250*time.Millisecond, rc.YellowTime())
	assert.Equal(t, 50*time.Millisecond, rc.TickTime())
	assert.Equal(t, ":9000", rc.All.Web.Listen)
}

func TestLaneSources(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{
		Input: config.Input{Sources: map[string]string{
			"lane1":   "a.mp4",
			"lane4":   "b/",
			"lane9":   "out-of-range.mp4", // 越界车道被忽略
			"camera2": "bad-key.mp4",      // 无法解析的键被忽略
		}},
		Control: config.Control{Lanes: 4},
	})
	assert.Equal(t, map[int32]string{1: "a.mp4", 4: "b/"}, rc.LaneSources())
}
