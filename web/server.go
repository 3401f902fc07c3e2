package web

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
)

var (
	broadcastInterval = flag.Float64("web.broadcast_interval", 0.1, "遥测广播周期（秒）")
)

// Server 对外服务
// 功能：提供遥测WebSocket广播、MJPEG帧流与操作员控制接口
// 说明：遥测层按固定周期轮询控制器快照并推送给所有观察端；操作指令
// （强制绿灯、模拟应急、上传视频）转发给仿真系统
type Server struct {
	sys    ISystem
	listen string

	upgrader websocket.Upgrader

	clientsMtx sync.Mutex
	clients    map[*websocket.Conn]string // 连接->客户端ID

	srv    *http.Server
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewServer 创建对外服务
// 功能：初始化路由与WebSocket升级器
// 参数：sys-仿真系统，listen-HTTP监听地址
// 返回：初始化完成的对外服务实例
func NewServer(sys ISystem, listen string) *Server {
	s := &Server{
		sys:    sys,
		listen: listen,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]string),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/emergency", s.handleWs)
	mux.HandleFunc("GET /video/{lane}", s.handleVideo)
	mux.HandleFunc("POST /signal/{lane}/force", s.handleForce)
	mux.HandleFunc("POST /signal/{lane}/simulate_emergency", s.handleSimulateEmergency)
	mux.HandleFunc("POST /upload/{lane}", s.handleUpload)
	mux.HandleFunc("POST /start_processing", s.handleStart)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("DELETE /video/{lane}", s.handleClearVideo)
	mux.HandleFunc("DELETE /videos", s.handleClearAll)
	s.srv = &http.Server{Addr: listen, Handler: mux}
	return s
}

// Start 启动对外服务
// 功能：启动遥测广播循环与HTTP监听
func (s *Server) Start() {
	go s.broadcast()
	go func() {
		log.Infof("web server listening on %s", s.listen)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("web server error: %v", err)
		}
	}()
}

// Stop 停止对外服务
// 功能：停止广播循环并优雅关闭HTTP服务
func (s *Server) Stop() {
	close(s.stopCh)
	<-s.doneCh
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Errorf("web server shutdown error: %v", err)
	}
}

// handleWs WebSocket遥测接入
// 功能：升级连接并登记为观察端，连接存续期间持续收到遥测广播
func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade error: %v", err)
		return
	}
	clientID := uuid.NewString()

	s.clientsMtx.Lock()
	s.clients[conn] = clientID
	n := len(s.clients)
	s.clientsMtx.Unlock()
	log.Infof("client %s connected, active connections: %d", clientID, n)

	// 只为探测断开而读
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	conn.Close()
	s.clientsMtx.Lock()
	clientID, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.clientsMtx.Unlock()
	if ok {
		log.Infof("client %s disconnected, active connections: %d", clientID, n)
	}
}

// emergencyInfo 遥测中的应急状态
type emergencyInfo struct {
	IsActive bool   `json:"is_active"`
	LaneID   *int32 `json:"lane_id"` // 当前优先权车道，无则为null
}

// telemetry 遥测广播载荷
type telemetry struct {
	Signals    map[string]string             `json:"signals"`
	Emergency  emergencyInfo                 `json:"emergency"`
	Detections map[string][]entity.Detection `json:"detections"`
}

// snapshot 构造当前遥测载荷
// 功能：汇总控制器相位快照、应急仲裁状态与各车道最近的检测元数据
func (s *Server) snapshot() telemetry {
	sc := s.sys.SignalController()
	signals := lo.MapEntries(sc.States(), func(id int32, p entity.Phase) (string, string) {
		return fmt.Sprintf("lane%d", id), p.String()
	})

	info := emergencyInfo{IsActive: sc.EmergencyMode()}
	if focus := sc.EmergencyFocus(); focus > 0 {
		info.LaneID = &focus
	}

	detections := make(map[string][]entity.Detection)
	latest := s.sys.Detections()
	for id := int32(1); id <= s.sys.Lanes(); id++ {
		dets := latest[id]
		if dets == nil {
			dets = []entity.Detection{}
		}
		detections[fmt.Sprintf("lane%d", id)] = dets
	}

	return telemetry{Signals: signals, Emergency: info, Detections: detections}
}

// broadcast 遥测广播循环
// 功能：按固定周期向所有观察端推送遥测载荷，写失败的连接被移除
func (s *Server) broadcast() {
	defer close(s.doneCh)
	ticker := time.NewTicker(time.Duration(*broadcastInterval * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			payload := s.snapshot()
			s.clientsMtx.Lock()
			conns := lo.Keys(s.clients)
			s.clientsMtx.Unlock()
			for _, conn := range conns {
				if err := conn.WriteJSON(payload); err != nil {
					s.dropClient(conn)
				}
			}
		}
	}
}
