package web

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

type fakeController struct {
	mtx       sync.Mutex
	states    map[int32]entity.Phase
	forced    []int32
	emergency bool
	focus     int32
}

func (c *fakeController) Start() {}
func (c *fakeController) Stop()  {}
func (c *fakeController) States() map[int32]entity.Phase {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	states := make(map[int32]entity.Phase, len(c.states))
	for id, p := range c.states {
		states[id] = p
	}
	return states
}
func (c *fakeController) UpdateEmergencyLanes(lanes []int32) {}
func (c *fakeController) ForceGreen(laneID int32) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.forced = append(c.forced, laneID)
}
func (c *fakeController) forcedLanes() []int32 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]int32{}, c.forced...)
}
func (c *fakeController) EmergencyMode() bool   { return c.emergency }
func (c *fakeController) EmergencyFocus() int32 { return c.focus }

type fakeVideoManager struct {
	frames map[int32][]byte
	ready  []int32
}

func (m *fakeVideoManager) StartAll()                                {}
func (m *fakeVideoManager) StopAll()                                 {}
func (m *fakeVideoManager) Stop(laneID int32)                        {}
func (m *fakeVideoManager) UpdateSource(laneID int32, source string) {}
func (m *fakeVideoManager) Frame(laneID int32) []byte                { return m.frames[laneID] }
func (m *fakeVideoManager) ReadyLanes() []int32                      { return m.ready }
func (m *fakeVideoManager) Sources() map[int32]string                { return nil }
func (m *fakeVideoManager) Clear()                                   {}

type fakeDetector struct {
	mtx       sync.Mutex
	overrides map[int32]*bool
}

func (d *fakeDetector) Detect(laneID int32, frame []byte) (bool, []entity.Detection) {
	return false, nil
}
func (d *fakeDetector) SetOverride(laneID int32, active *bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.overrides == nil {
		d.overrides = make(map[int32]*bool)
	}
	d.overrides[laneID] = active
}
func (d *fakeDetector) override(laneID int32) *bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.overrides[laneID]
}

type fakeSystem struct {
	controller *fakeController
	videos     *fakeVideoManager
	detector   *fakeDetector

	mtx        sync.Mutex
	started    bool
	startErr   error
	resets     int
	attached   map[int32]string
	detached   []int32
	detections map[int32][]entity.Detection
	uploadDir  string
}

func (s *fakeSystem) SignalController() entity.ISignalController { return s.controller }
func (s *fakeSystem) VideoManager() entity.IVideoManager         { return s.videos }
func (s *fakeSystem) Detector() entity.IDetector                 { return s.detector }
func (s *fakeSystem) Detections() map[int32][]entity.Detection   { return s.detections }
func (s *fakeSystem) Lanes() int32                               { return 4 }
func (s *fakeSystem) Started() bool                              { return s.started }
func (s *fakeSystem) StartSystem() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}
func (s *fakeSystem) ResetSystem() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.resets++
}
func (s *fakeSystem) UploadDir() string { return s.uploadDir }
func (s *fakeSystem) AttachSource(laneID int32, path string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.attached == nil {
		s.attached = make(map[int32]string)
	}
	s.attached[laneID] = path
}
func (s *fakeSystem) DetachSource(laneID int32) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.detached = append(s.detached, laneID)
}

func newTestServer(t *testing.T) (*fakeSystem, *httptest.Server) {
	t.Helper()
	sys := &fakeSystem{
		controller: &fakeController{states: map[int32]entity.Phase{
			1: entity.PhaseGreen, 2: entity.PhaseRed, 3: entity.PhaseRed, 4: entity.PhaseRed,
		}},
		videos:    &fakeVideoManager{ready: []int32{1, 2}},
		detector:  &fakeDetector{},
		uploadDir: t.TempDir(),
	}
	s := NewServer(sys, ":0")
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return sys, ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["system_started"])
	assert.Equal(t, 2.0, body["lanes_ready"])
	assert.Equal(t, []any{1.0, 2.0}, body["lanes_with_videos"])
}

func TestForceGreen(t *testing.T) {
	sys, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/signal/2/force", "", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	// 强制转绿异步转发给控制器
	assert.Eventually(t, func() bool {
		return len(sys.controller.forcedLanes()) == 1 && sys.controller.forcedLanes()[0] == 2
	}, time.Second, time.Millisecond)
}

func TestForceGreenBadLane(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/signal/abc/force", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSimulateEmergency(t *testing.T) {
	sys, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/signal/3/simulate_emergency?active=true", "", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, true, body["emergency"])
	require.NotNil(t, sys.detector.override(3))
	assert.True(t, *sys.detector.override(3))

	resp, err = http.Post(ts.URL+"/signal/3/simulate_emergency?active=false", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.NotNil(t, sys.detector.override(3))
	assert.False(t, *sys.detector.override(3))

	// active参数缺失或非法
	resp, err = http.Post(ts.URL+"/signal/3/simulate_emergency", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUpload(t *testing.T) {
	sys, ts := newTestServer(t)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "north.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload/2", mw.FormDataContentType(), strings.NewReader(buf.String()))
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 2.0, body["lanes_ready"])

	// 文件落盘且已接入对应车道
	path := sys.attached[2]
	require.NotEmpty(t, path)
	assert.Equal(t, filepath.Ext(path), ".mp4")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(data))
}

func TestUploadMissingFile(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/upload/2", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStartProcessing(t *testing.T) {
	sys, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/start_processing", "", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.True(t, sys.started)

	resp, err = http.Post(ts.URL+"/start_processing", "", nil)
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, "already_running", body["status"])
}

func TestClearVideoAndReset(t *testing.T) {
	sys, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/video/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []int32{1}, sys.detached)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/videos", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, sys.resets)
}

func TestSnapshotPayload(t *testing.T) {
	sys := &fakeSystem{
		controller: &fakeController{
			states:    map[int32]entity.Phase{1: entity.PhaseRed, 2: entity.PhaseGreen},
			emergency: true,
			focus:     2,
		},
		videos:   &fakeVideoManager{},
		detector: &fakeDetector{},
		detections: map[int32][]entity.Detection{
			2: {{Class: "fire_truck", Confidence: 0.9}},
		},
	}
	s := NewServer(sys, ":0")

	data, err := json.Marshal(s.snapshot())
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))

	signals := payload["signals"].(map[string]any)
	assert.Equal(t, "RED", signals["lane1"])
	assert.Equal(t, "GREEN", signals["lane2"])

	emergency := payload["emergency"].(map[string]any)
	assert.Equal(t, true, emergency["is_active"])
	assert.Equal(t, 2.0, emergency["lane_id"])

	// 无检测结果的车道输出空数组而不是null
	detections := payload["detections"].(map[string]any)
	assert.Equal(t, []any{}, detections["lane1"])
	require.Len(t, detections["lane2"], 1)
}

func TestSnapshotNoEmergency(t *testing.T) {
	sys := &fakeSystem{
		controller: &fakeController{states: map[int32]entity.Phase{1: entity.PhaseGreen}},
		videos:     &fakeVideoManager{},
		detector:   &fakeDetector{},
	}
	s := NewServer(sys, ":0")

	data, err := json.Marshal(s.snapshot())
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	emergency := payload["emergency"].(map[string]any)
	assert.Equal(t, false, emergency["is_active"])
	assert.Nil(t, emergency["lane_id"])
}

func TestWebsocketConnect(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/emergency"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	conn.Close()
}
