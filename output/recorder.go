package output

import (
	"context"
	"flag"
	"time"

	"github.com/tsinghua-fib-lab/preemption-sim-oss/entity"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	recordBuffer = flag.Int("output.record_buffer", 1024, "相位变化记录的缓冲区大小，写满后丢弃并告警")
)

// TransitionRecord 单条相位变化记录
type TransitionRecord struct {
	Job   string  `bson:"job"`   // 任务名，用作表内数据的归属标识
	Lane  int32   `bson:"lane"`  // 车道ID
	Phase string  `bson:"phase"` // 提交的相位
	T     float64 `bson:"t"`     // 运行时间（秒）
	Time  int64   `bson:"time"`  // 墙上时间（UnixMilli）
}

// Recorder 相位变化记录器
// 功能：将控制器提交的每次相位变化按提交顺序写入MongoDB
// 说明：实现entity.ISignalSink。写入经缓冲通道与独立goroutine完成，
// SendUpdate不会阻塞控制循环；缓冲写满时丢弃记录并告警，失败不反馈到
// 控制器逻辑中
type Recorder struct {
	ctx entity.ITaskContext

	client *mongo.Client
	coll   *mongo.Collection

	ch     chan TransitionRecord
	doneCh chan struct{}
}

// NewRecorder 创建相位变化记录器
// 功能：连接MongoDB并启动后台写入goroutine
// 参数：ctx-任务上下文
// 返回：记录器实例与连接错误
func NewRecorder(ctx entity.ITaskContext) (*Recorder, error) {
	oc := ctx.RuntimeConfig().All.Output
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(oc.URI))
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		ctx:    ctx,
		client: client,
		coll:   client.Database(oc.DB).Collection(oc.Col),
		ch:     make(chan TransitionRecord, *recordBuffer),
		doneCh: make(chan struct{}),
	}
	go r.write()
	log.Infof("transition recorder started, writing to %s.%s", oc.DB, oc.Col)
	return r, nil
}

// SendUpdate 记录一次相位变化
// 功能：将记录投递到写入缓冲，缓冲写满时丢弃并告警
func (r *Recorder) SendUpdate(laneID int32, phase entity.Phase) {
	rec := TransitionRecord{
		Job:   r.ctx.JobName(),
		Lane:  laneID,
		Phase: phase.String(),
		T:     r.ctx.Clock().T(),
		Time:  time.Now().UnixMilli(),
	}
	select {
	case r.ch <- rec:
	default:
		log.Warnf("record buffer full, transition of lane %d dropped", laneID)
	}
}

// Close 关闭记录器
// 功能：等待缓冲内的记录写完后断开MongoDB连接
func (r *Recorder) Close() {
	close(r.ch)
	<-r.doneCh
	if err := r.client.Disconnect(context.Background()); err != nil {
		log.Errorf("mongo disconnect error: %v", err)
	}
}

// write 后台写入循环
func (r *Recorder) write() {
	defer close(r.doneCh)
	for rec := range r.ch {
		if _, err := r.coll.InsertOne(context.Background(), rec); err != nil {
			log.Errorf("record insert error: %v", err)
		}
	}
}
