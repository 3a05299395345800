package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/models"
)

type memQueue struct {
	mu      sync.Mutex
	tasks   map[int64]*models.Task
	retries map[int64]time.Time
}

func newMemQueue(tasks ...*models.Task) *memQueue {
	q := &memQueue{tasks: make(map[int64]*models.Task), retries: make(map[int64]time.Time)}
	for _, t := range tasks {
		if t.Status == "" {
			t.Status = models.TaskPending
		}
		q.tasks[t.ID] = t
	}
	return q
}

func (q *memQueue) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*models.Task
	for _, t := range q.tasks {
		if t.Status == models.TaskPending && !t.NextAttemptAt.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (q *memQueue) MarkDone(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[id].Status = models.TaskDone
	q.tasks[id].Attempts++
	return nil
}

func (q *memQueue) MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.tasks[id]
	t.Attempts++
	t.NextAttemptAt = next
	t.LastError = &lastErr
	q.retries[id] = next
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.tasks[id]
	t.Status = models.TaskFailed
	t.Attempts++
	t.LastError = &lastErr
	return nil
}

type fakeNavigator struct {
	err   error
	calls []models.NavigationPayload
}

func (n *fakeNavigator) ShareNavigation(ctx context.Context, nav models.NavigationPayload) error {
	n.calls = append(n.calls, nav)
	return n.err
}

type fakeNotifier struct {
	err  error
	sent []models.NotificationPayload
}

func (n *fakeNotifier) Notify(ctx context.Context, p models.NotificationPayload) error {
	n.sent = append(n.sent, p)
	return n.err
}

type fakeMarker struct {
	marked []int64
}

func (m *fakeMarker) MarkNavigationSent(ctx context.Context, bookingID int64) error {
	m.marked = append(m.marked, bookingID)
	return nil
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDispatcher_ProcessesDueTasks(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	queue := newMemQueue(
		&models.Task{ID: 1, BookingID: 5, Kind: models.TaskNavigation, NextAttemptAt: now,
			Payload: payload(t, models.NavigationPayload{UserID: 10, TeslaID: 111, Address: "1 Main St"})},
		&models.Task{ID: 2, BookingID: 5, Kind: models.TaskNotification, NextAttemptAt: now,
			Payload: payload(t, models.NotificationPayload{Event: "confirmed", UserID: 10, Reference: "DH-ABC123"})},
		&models.Task{ID: 3, BookingID: 6, Kind: models.TaskNotification, NextAttemptAt: now.Add(time.Hour),
			Payload: payload(t, models.NotificationPayload{Event: "confirmed", UserID: 11})},
	)
	nav := &fakeNavigator{}
	notifier := &fakeNotifier{}
	marker := &fakeMarker{}

	d := NewDispatcher(zap.NewNop(), time.Second, queue, nav, notifier, marker)
	d.now = func() time.Time { return now }

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, models.TaskDone, queue.tasks[1].Status)
	assert.Equal(t, models.TaskDone, queue.tasks[2].Status)
	assert.Equal(t, models.TaskPending, queue.tasks[3].Status)

	require.Len(t, nav.calls, 1)
	assert.Equal(t, int64(111), nav.calls[0].TeslaID)
	assert.Equal(t, []int64{5}, marker.marked)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "DH-ABC123", notifier.sent[0].Reference)
}

func TestDispatcher_RetriesWithBackoffThenFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	queue := newMemQueue(&models.Task{ID: 1, BookingID: 5, Kind: models.TaskNotification, NextAttemptAt: now,
		Payload: payload(t, models.NotificationPayload{Event: "confirmed", UserID: 10})})
	notifier := &fakeNotifier{err: errors.New("broker unavailable")}

	d := NewDispatcher(zap.NewNop(), time.Second, queue, nil, notifier, nil)
	clock := now
	d.now = func() time.Time { return clock }

	for attempt := 1; attempt < MaxTaskAttempts; attempt++ {
		_, err := d.RunOnce(context.Background())
		require.NoError(t, err)

		task := queue.tasks[1]
		assert.Equal(t, models.TaskPending, task.Status)
		assert.Equal(t, attempt, task.Attempts)
		assert.Equal(t, clock.Add(Backoff(attempt)), task.NextAttemptAt)
		require.NotNil(t, task.LastError)
		assert.Equal(t, "broker unavailable", *task.LastError)

		// 未到重试时间不执行
		n, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)

		clock = task.NextAttemptAt
	}

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, queue.tasks[1].Status)
	assert.Equal(t, MaxTaskAttempts, queue.tasks[1].Attempts)
	assert.Len(t, notifier.sent, MaxTaskAttempts)
}

func TestDispatcher_PermanentFailures(t *testing.T) {
	now := time.Now()
	queue := newMemQueue(
		&models.Task{ID: 1, Kind: models.TaskNavigation, NextAttemptAt: now, Payload: json.RawMessage(`{"user_id":1,"tesla_id":2}`)},
		&models.Task{ID: 2, Kind: "carrier_pigeon", NextAttemptAt: now, Payload: json.RawMessage(`{}`)},
		&models.Task{ID: 3, Kind: models.TaskNotification, NextAttemptAt: now, Payload: json.RawMessage(`not json`)},
	)
	nav := &fakeNavigator{err: ErrReauthRequired}

	d := NewDispatcher(zap.NewNop(), time.Second, queue, nav, &fakeNotifier{}, nil)
	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	for id := int64(1); id <= 3; id++ {
		assert.Equal(t, models.TaskFailed, queue.tasks[id].Status, "task %d", id)
		assert.Equal(t, 1, queue.tasks[id].Attempts)
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	queue := newMemQueue(&models.Task{ID: 1, Kind: models.TaskNotification, NextAttemptAt: time.Now().Add(-time.Second),
		Payload: payload(t, models.NotificationPayload{Event: "confirmed", UserID: 1})})

	d := NewDispatcher(zap.NewNop(), 10*time.Millisecond, queue, nil, &fakeNotifier{}, nil)
	d.Start(context.Background())
	d.Start(context.Background())

	assert.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return queue.tasks[1].Status == models.TaskDone
	}, time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop()
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, Backoff(0))
	assert.Equal(t, 30*time.Second, Backoff(1))
	assert.Equal(t, time.Minute, Backoff(2))
	assert.Equal(t, 2*time.Minute, Backoff(3))
	assert.Equal(t, 30*time.Minute, Backoff(10))
}
