package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity/videosource"
)

// laneID 从路径参数解析车道ID
func (s *Server) laneID(r *http.Request) (int32, error) {
	id, err := strconv.ParseInt(r.PathValue("lane"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid lane id %q", r.PathValue("lane"))
	}
	return int32(id), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleForce 操作员强制指定车道转绿
func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	laneID, err := s.laneID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	// ForceGreen会等待清空过渡完成，异步执行以保持接口响应
	go s.sys.SignalController().ForceGreen(laneID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("lane %d forced to green", laneID),
	})
}

// handleSimulateEmergency 人工模拟应急事件
// 功能：按active参数覆盖指定车道的检测结果，由检测反馈在下一轮推理时生效
func (s *Server) handleSimulateEmergency(w http.ResponseWriter, r *http.Request) {
	laneID, err := s.laneID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	active, err := strconv.ParseBool(r.URL.Query().Get("active"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "active must be true or false"})
		return
	}
	s.sys.Detector().SetOverride(laneID, &active)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "emergency": active})
}

// handleVideo MJPEG帧流
// 功能：以multipart流持续输出指定车道的最新帧，直到客户端断开
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	laneID, err := s.laneID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := s.sys.VideoManager().Frame(laneID)
			if frame == nil {
				frame = videosource.BlankFrame
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleUpload 上传车道视频
// 功能：保存上传文件并热替换该车道的视频源；所有车道齐备时系统自动启动
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	laneID, err := s.laneID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "missing file"})
		return
	}
	defer file.Close()

	uploadDir := s.sys.UploadDir()
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	path := filepath.Join(uploadDir,
		fmt.Sprintf("lane%d_%s%s", laneID, uuid.NewString(), filepath.Ext(header.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	dst.Close()

	s.sys.AttachSource(laneID, path)
	ready := s.sys.VideoManager().ReadyLanes()
	log.Infof("video uploaded for lane %d, lanes ready: %d/%d", laneID, len(ready), s.sys.Lanes())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"file_path":      path,
		"lanes_ready":    len(ready),
		"system_started": s.sys.Started(),
	})
}

// handleStart 手动启动系统
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.sys.Started() {
		writeJSON(w, http.StatusOK, map[string]any{"status": "already_running", "message": "system is already running"})
		return
	}
	if err := s.sys.StartSystem(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "system started"})
}

// handleStatus 系统状态查询
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ready := s.sys.VideoManager().ReadyLanes()
	writeJSON(w, http.StatusOK, map[string]any{
		"system_started":    s.sys.Started(),
		"lanes_ready":       len(ready),
		"lanes_with_videos": ready,
	})
}

// handleClearVideo 移除指定车道的视频源
func (s *Server) handleClearVideo(w http.ResponseWriter, r *http.Request) {
	laneID, err := s.laneID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	s.sys.DetachSource(laneID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("video cleared for lane %d", laneID),
	})
}

// handleClearAll 清空所有视频并重置系统
func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.sys.ResetSystem()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "all videos cleared and system reset"})
}
