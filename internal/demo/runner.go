package demo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MsgTypeFrame 演示帧的 WebSocket 消息类型
const MsgTypeFrame = "demo_frame"

// Ticker 定时器抽象，测试中替换为手动触发
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker 基于 time.Ticker 的实现
func NewTimeTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

// Publisher 帧推送目标
type Publisher interface {
	BroadcastMessage(msgType string, data interface{})
}

// Frame 一次 tick 的完整演示状态
type Frame struct {
	SessionID string    `json:"session_id"`
	Running   bool      `json:"running"`
	Phase     Phase     `json:"phase"`
	Elapsed   float64   `json:"elapsed_seconds"`
	Reference string    `json:"booking_reference"`
	Position  Waypoint  `json:"position"`
	Progress  float64   `json:"journey_progress"`
	NewEvents []Event   `json:"new_events,omitempty"`
	Events    []Event   `json:"events"`
	StartedAt time.Time `json:"started_at"`
}

// Runner 驱动演示会话，同一时间只有一个会话
type Runner struct {
	logger    *zap.Logger
	publisher Publisher
	tick      time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	// lifecycle 串行化 Start/Stop，mu 保护会话状态
	lifecycle sync.Mutex
	mu        sync.Mutex
	sessionID string
	startedAt time.Time
	sim       *Simulation
	running   bool
	last      *Frame
	stopCh    chan struct{}
	done      chan struct{}
}

// NewRunner 创建演示驱动，tick 默认 2 秒
func NewRunner(logger *zap.Logger, publisher Publisher, tick time.Duration) *Runner {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return &Runner{
		logger:    logger,
		publisher: publisher,
		tick:      tick,
		newTicker: NewTimeTicker,
		now:       time.Now,
	}
}

// Start 开始新会话，之前的会话和事件全部清空
func (r *Runner) Start(ctx context.Context) *Frame {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.stopSession()

	r.mu.Lock()
	r.sessionID = uuid.NewString()
	r.startedAt = r.now()
	r.sim = NewSimulation()
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	ticker := r.newTicker(r.tick)
	stopCh, done := r.stopCh, r.done
	frame := r.frameLocked()
	r.mu.Unlock()

	r.publish(frame)
	go r.loop(ctx, ticker, stopCh, done)

	r.logger.Info("Demo session started", zap.String("session_id", frame.SessionID), zap.Duration("tick", r.tick))
	return frame
}

// Stop 停止当前会话，保留最后一帧
func (r *Runner) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.stopSession()
}

// stopSession 调用方持有 lifecycle 锁
func (r *Runner) stopSession() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()

	<-done

	r.mu.Lock()
	r.sim.Add(r.now(), SourceSystem, LevelInfo, "Demo simulation paused")
	frame := r.frameLocked()
	r.mu.Unlock()

	r.publish(frame)
	r.logger.Info("Demo session stopped", zap.String("session_id", frame.SessionID))
}

// State 最近一帧，未启动过时返回 nil
func (r *Runner) State() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) loop(ctx context.Context, ticker Ticker, stopCh, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			frame, done := r.step()
			r.publish(frame)
			if done {
				r.logger.Info("Demo session complete", zap.String("session_id", frame.SessionID))
				return
			}
		}
	}
}

// step 推进一帧；进入 complete 阶段后会话自行结束
func (r *Runner) step() (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := r.frameLocked()
	if frame.Phase == PhaseComplete {
		r.running = false
		frame.Running = false
		r.last = frame
		return frame, true
	}
	return frame, false
}

func (r *Runner) frameLocked() *Frame {
	now := r.now()
	elapsed := now.Sub(r.startedAt)
	fired := r.sim.Advance(elapsed, now)

	progress := (elapsed - journeyStart).Seconds() / (journeyEnd - journeyStart).Seconds()
	progress = min(max(progress, 0), 1)

	frame := &Frame{
		SessionID: r.sessionID,
		Running:   r.running,
		Phase:     PhaseAt(elapsed),
		Elapsed:   elapsed.Seconds(),
		Reference: Reference,
		Position:  JourneyPosition(elapsed),
		Progress:  progress * 100,
		NewEvents: fired,
		Events:    r.sim.Feed(),
		StartedAt: r.startedAt,
	}
	r.last = frame
	return frame
}

func (r *Runner) publish(frame *Frame) {
	if r.publisher != nil {
		r.publisher.BroadcastMessage(MsgTypeFrame, frame)
	}
}
