package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/api/tesla"
	"github.com/langchou/drivewayhub/internal/models"
)

type fakeLocator struct {
	positions map[int64][2]float64
	calls     int
}

func (l *fakeLocator) VehicleLocation(ctx context.Context, userID, teslaID int64) (float64, float64, error) {
	l.calls++
	p, ok := l.positions[teslaID]
	if !ok {
		return 0, 0, tesla.ErrVehicleUnavailable
	}
	return p[0], p[1], nil
}

func TestArrivalMonitor_DetectsArrival(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 30*time.Minute, 2*time.Hour))
	require.NoError(t, err)
	// 非 Tesla 车辆不参与检测
	_, err = svc.CreateBooking(ctx, bookingInput(1, 2, 3*time.Hour, time.Hour))
	require.NoError(t, err)

	locator := &fakeLocator{positions: map[int64][2]float64{987654: {43.6632, -79.3832}}}
	monitor := NewArrivalMonitor(zap.NewNop(), time.Second, svc, locator, nil)

	// 约 1.1 km 外
	assert.Zero(t, monitor.Poll(ctx))
	assert.Equal(t, models.BookingConfirmed, store.bookings[bd.ID].Status)
	assert.Equal(t, 1, locator.calls)

	locator.positions[987654] = [2]float64{43.6533, -79.3833}
	assert.Equal(t, 1, monitor.Poll(ctx))
	assert.Equal(t, models.BookingActive, store.bookings[bd.ID].Status)
	assert.NotNil(t, store.bookings[bd.ID].ArrivalDetectedAt)

	// 已到达的预订不再查询位置
	assert.Zero(t, monitor.Poll(ctx))
	assert.Equal(t, 2, locator.calls)
}

func TestArrivalMonitor_SkipsUnavailableVehicle(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 10*time.Minute, time.Hour))
	require.NoError(t, err)

	monitor := NewArrivalMonitor(zap.NewNop(), time.Second, svc, &fakeLocator{}, nil)
	assert.Zero(t, monitor.Poll(ctx))
	assert.Equal(t, models.BookingConfirmed, store.bookings[bd.ID].Status)
}

func TestArrivalMonitor_NavigationReminderOnce(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 90*time.Minute, time.Hour))
	require.NoError(t, err)

	nav := &fakeNavigator{}
	monitor := NewArrivalMonitor(zap.NewNop(), time.Second, svc, &fakeLocator{}, nav)

	// outbox 任务未处理完之前不重复推送
	monitor.Poll(ctx)
	assert.Empty(t, nav.calls)

	store.settleTasks(models.TaskNavigation, models.TaskFailed)
	nav.err = tesla.ErrVehicleUnavailable

	monitor.Poll(ctx)
	monitor.Poll(ctx)
	require.Len(t, nav.calls, 1)
	assert.Equal(t, "100 Queen St W, Toronto", nav.calls[0].Address)
	assert.False(t, store.bookings[bd.ID].NavigationSent)

	nav.err = nil
	monitor.navTried = make(map[int64]bool)
	monitor.Poll(ctx)
	assert.True(t, store.bookings[bd.ID].NavigationSent)
}

func TestArrivalMonitor_ForgetsBookingsLeavingWindow(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(1, 1, 30*time.Minute, time.Hour))
	require.NoError(t, err)
	second, err := svc.CreateBooking(ctx, bookingInput(1, 1, 100*time.Minute, time.Hour))
	require.NoError(t, err)
	store.settleTasks(models.TaskNavigation, models.TaskFailed)

	nav := &fakeNavigator{err: tesla.ErrVehicleUnavailable}
	monitor := NewArrivalMonitor(zap.NewNop(), time.Second, svc, &fakeLocator{}, nav)

	monitor.Poll(ctx)
	require.Len(t, nav.calls, 2)
	assert.Len(t, monitor.navTried, 2)

	// 第一个预订已开始，移出补发窗口
	svc.now = func() time.Time { return testNow.Add(35 * time.Minute) }
	monitor.Poll(ctx)
	assert.Len(t, nav.calls, 2)
	assert.Equal(t, map[int64]bool{second.ID: true}, monitor.navTried)

	svc.now = func() time.Time { return testNow.Add(4 * time.Hour) }
	monitor.Poll(ctx)
	assert.Empty(t, monitor.navTried)
}
