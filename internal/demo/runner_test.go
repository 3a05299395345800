package demo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type recordingPublisher struct {
	mu     sync.Mutex
	frames []*Frame
}

func (p *recordingPublisher) BroadcastMessage(msgType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msgType == MsgTypeFrame {
		p.frames = append(p.frames, data.(*Frame))
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *recordingPublisher) lastFrame() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[len(p.frames)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRunner() (*Runner, *recordingPublisher, *testClock, *[]*manualTicker) {
	pub := &recordingPublisher{}
	clock := &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	tickers := &[]*manualTicker{}

	r := NewRunner(zap.NewNop(), pub, time.Second)
	r.now = clock.Now
	r.newTicker = func(time.Duration) Ticker {
		t := newManualTicker()
		*tickers = append(*tickers, t)
		return t
	}
	return r, pub, clock, tickers
}

func TestRunner_PlaysThroughPhases(t *testing.T) {
	r, pub, clock, tickers := newTestRunner()
	assert.Nil(t, r.State())

	first := r.Start(context.Background())
	require.NotEmpty(t, first.SessionID)
	assert.True(t, first.Running)
	assert.Equal(t, PhaseSetup, first.Phase)
	require.Len(t, first.Events, 1)

	ticker := (*tickers)[0]
	tick := func(d time.Duration) *Frame {
		clock.Advance(d)
		before := pub.count()
		ticker.c <- clock.Now()
		require.Eventually(t, func() bool { return pub.count() > before }, time.Second, time.Millisecond)
		return pub.lastFrame()
	}

	f := tick(60 * time.Second)
	assert.Equal(t, PhaseBooking, f.Phase)
	assert.Equal(t, Reference, f.Reference)
	assert.Zero(t, f.Progress)

	f = tick(300 * time.Second)
	assert.Equal(t, PhaseJourney, f.Phase)
	assert.Equal(t, 50.0, f.Progress)
	assert.Equal(t, 43.628234, f.Position.Latitude)

	f = tick(300 * time.Second)
	assert.Equal(t, PhaseComplete, f.Phase)
	assert.False(t, f.Running)
	assert.Equal(t, 100.0, f.Progress)
	assert.Len(t, f.Events, len(milestones))

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after completion")
	}
	assert.Equal(t, PhaseComplete, r.State().Phase)
}

func TestRunner_StartClearsPreviousSession(t *testing.T) {
	r, _, clock, tickers := newTestRunner()

	first := r.Start(context.Background())
	clock.Advance(90 * time.Second)

	second := r.Start(context.Background())
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, PhaseSetup, second.Phase)
	assert.Len(t, second.Events, 1)
	assert.Zero(t, second.Elapsed)

	require.Len(t, *tickers, 2)
	select {
	case <-(*tickers)[0].stopped:
	default:
		t.Fatal("previous ticker still running")
	}

	r.Stop()
	state := r.State()
	assert.False(t, state.Running)
	assert.Equal(t, "Demo simulation paused", state.Events[len(state.Events)-1].Message)

	// 重复 Stop 无副作用
	r.Stop()
}

func TestRunner_ConcurrentStart(t *testing.T) {
	r, _, _, tickers := newTestRunner()
	ctx := context.Background()

	var wg sync.WaitGroup
	sessions := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions <- r.Start(ctx).SessionID
		}()
	}
	wg.Wait()
	close(sessions)

	seen := make(map[string]bool)
	for id := range sessions {
		seen[id] = true
	}
	assert.Len(t, seen, 8)

	r.Stop()
	require.Len(t, *tickers, 8)
	for i, tk := range *tickers {
		select {
		case <-tk.stopped:
		default:
			t.Fatalf("ticker %d still running", i)
		}
	}
	assert.False(t, r.State().Running)
}
