package videosource

import (
	"bytes"
	"flag"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

var (
	framePeriod   = flag.Float64("video.frame_period", 0.033, "取帧周期（秒），约30FPS")
	reopenBackoff = flag.Float64("video.reopen_backoff", 2, "视频源打开失败后的重试间隔（秒）")
)

// BlankFrame 无可用视频源时的占位帧（640x360灰度JPEG）
var BlankFrame = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 640, 360))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// fileSource 文件视频源
// 功能：在独立goroutine中按固定帧率循环读取一个帧目录（或单个帧文件），
// 读到末尾后回绕，打开失败时退回占位帧并定期重试
// 说明：对应有限长视频源的循环播放行为；帧数据视为不可变，读取方不得修改
type fileSource struct {
	laneID int32
	source string

	mtx     sync.RWMutex
	current []byte

	stopCh chan struct{}
	doneCh chan struct{}
}

func newFileSource(laneID int32, source string) *fileSource {
	s := &fileSource{
		laneID:  laneID,
		source:  source,
		current: BlankFrame,
	}
	return s
}

// start 启动取帧循环
func (s *fileSource) start() {
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.update()
	log.Infof("lane %d: video source %s started", s.laneID, s.source)
}

// stop 停止取帧循环
func (s *fileSource) stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	log.Infof("lane %d: video source stopped", s.laneID)
}

// read 获取最新一帧
func (s *fileSource) read() []byte {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.current
}

func (s *fileSource) setCurrent(frame []byte) {
	s.mtx.Lock()
	s.current = frame
	s.mtx.Unlock()
}

// update 取帧循环
// 功能：列出帧文件后循环读取；列表失败时写入占位帧并按退避间隔重试
func (s *fileSource) update() {
	defer close(s.doneCh)
	period := time.Duration(*framePeriod * float64(time.Second))
	backoff := time.Duration(*reopenBackoff * float64(time.Second))

	var frames []string
	idx := 0
	for {
		if len(frames) == 0 {
			var err error
			if frames, err = listFrames(s.source); err != nil {
				log.Warnf("lane %d: cannot open source %s, using blank frame: %v", s.laneID, s.source, err)
				s.setCurrent(BlankFrame)
				if !s.sleep(backoff) {
					return
				}
				continue
			}
			idx = 0
		}
		data, err := os.ReadFile(frames[idx])
		if err != nil {
			log.Warnf("lane %d: frame read error: %v", s.laneID, err)
			s.setCurrent(BlankFrame)
		} else {
			s.setCurrent(data)
		}
		// 回绕到文件开头
		idx = (idx + 1) % len(frames)
		if !s.sleep(period) {
			return
		}
	}
}

// sleep 可中断睡眠，返回false表示已请求停止
func (s *fileSource) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// listFrames 列出视频源的帧文件
// 功能：目录按文件名升序展开为帧序列，普通文件作为单帧序列
func listFrames(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{source}, nil
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, err
	}
	frames := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		frames = append(frames, filepath.Join(source, e.Name()))
	}
	if len(frames) == 0 {
		return nil, os.ErrNotExist
	}
	slices.Sort(frames)
	return frames, nil
}
