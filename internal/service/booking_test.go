package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/repository"
)

// memStore 内存版预订存储，事务失败时回滚
type memStore struct {
	mu        sync.Mutex
	driveways map[int64]*models.Driveway
	vehicles  map[int64]*models.Vehicle
	bookings  map[int64]*models.Booking
	tasks     []*models.Task
	nextID    int64
	txCount   int
	refs      map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		driveways: make(map[int64]*models.Driveway),
		vehicles:  make(map[int64]*models.Vehicle),
		bookings:  make(map[int64]*models.Booking),
		refs:      make(map[string]bool),
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	snapshot := make(map[int64]models.Booking, len(m.bookings))
	for id, b := range m.bookings {
		snapshot[id] = *b
	}
	taskCount := len(m.tasks)

	if err := fn(&memTx{m: m}); err != nil {
		m.bookings = make(map[int64]*models.Booking, len(snapshot))
		for id, b := range snapshot {
			b := b
			m.bookings[id] = &b
		}
		m.tasks = m.tasks[:taskCount]
		return err
	}
	return nil
}

func (m *memStore) detail(b *models.Booking) *models.BookingDetail {
	d := m.driveways[b.DrivewayID]
	v := m.vehicles[b.VehicleID]
	return &models.BookingDetail{
		Booking:         *b,
		DrivewayTitle:   d.Title,
		DrivewayAddress: d.Address,
		HostID:          d.HostID,
		Latitude:        d.Latitude,
		Longitude:       d.Longitude,
		VehicleName:     v.Label(),
		TeslaID:         v.TeslaID,
	}
}

func (m *memStore) GetByID(ctx context.Context, id int64) (*models.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("get booking: %w", repository.ErrNotFound)
	}
	return m.detail(b), nil
}

func (m *memStore) list(match func(bd *models.BookingDetail) bool) []*models.BookingDetail {
	var out []*models.BookingDetail
	for _, b := range m.bookings {
		if bd := m.detail(b); match(bd) {
			out = append(out, bd)
		}
	}
	return out
}

func (m *memStore) ListByDriver(ctx context.Context, driverID int64, limit, offset int) ([]*models.BookingDetail, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.list(func(bd *models.BookingDetail) bool { return bd.DriverID == driverID })
	return out, int64(len(out)), nil
}

func (m *memStore) ListByHost(ctx context.Context, hostID int64, limit, offset int) ([]*models.BookingDetail, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.list(func(bd *models.BookingDetail) bool { return bd.HostID == hostID })
	return out, int64(len(out)), nil
}

func (m *memStore) FindUpcoming(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(bd *models.BookingDetail) bool {
		return bd.Status == models.BookingConfirmed && !bd.NavigationSent &&
			!bd.StartTime.Before(from) && !bd.StartTime.After(to) &&
			!m.hasPendingTask(bd.ID, models.TaskNavigation)
	}), nil
}

func (m *memStore) hasPendingTask(bookingID int64, kind string) bool {
	for _, t := range m.tasks {
		if t.BookingID == bookingID && t.Kind == kind && t.Status == models.TaskPending {
			return true
		}
	}
	return false
}

// settleTasks 模拟调度器处理完某类任务
func (m *memStore) settleTasks(kind, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Kind == kind {
			t.Status = status
		}
	}
}

func (m *memStore) ListAwaitingArrival(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(bd *models.BookingDetail) bool {
		return bd.Status == models.BookingConfirmed && bd.ArrivalDetectedAt == nil && bd.TeslaID != nil &&
			!bd.StartTime.Before(from) && !bd.StartTime.After(to)
	}), nil
}

func (m *memStore) MarkNavigationSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.NavigationSent = true
	return nil
}

func (m *memStore) HostEarnings(ctx context.Context, hostID int64) (*models.HostEarnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &models.HostEarnings{HostID: hostID}
	for _, bd := range m.list(func(bd *models.BookingDetail) bool { return bd.HostID == hostID }) {
		if bd.Status == models.BookingCompleted {
			e.CompletedBookings++
			e.TotalEarnings += bd.HostEarnings
		}
	}
	return e, nil
}

func (m *memStore) tasksOf(kind string) []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

type memTx struct {
	m *memStore
}

func (t *memTx) LockDriveway(ctx context.Context, id int64) (*models.Driveway, error) {
	d, ok := t.m.driveways[id]
	if !ok {
		return nil, fmt.Errorf("lock driveway: %w", repository.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (t *memTx) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, ok := t.m.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("get vehicle: %w", repository.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (t *memTx) HasConflict(ctx context.Context, drivewayID int64, start, end time.Time) (bool, error) {
	for _, b := range t.m.bookings {
		if b.DrivewayID == drivewayID && b.Blocking() && b.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if t.m.refs[b.Reference] {
		return fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: "23505"})
	}
	t.m.refs[b.Reference] = true
	t.m.nextID++
	b.ID = t.m.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	t.m.bookings[b.ID] = &cp
	return nil
}

func (t *memTx) LockBooking(ctx context.Context, id int64) (*models.BookingDetail, error) {
	b, ok := t.m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("lock booking: %w", repository.ErrNotFound)
	}
	return t.m.detail(b), nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id int64, c repository.StatusChange) error {
	b, ok := t.m.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = c.Status
	applyChange(b, c)
	return nil
}

func (t *memTx) EnqueueTask(ctx context.Context, task *models.Task) error {
	t.m.nextID++
	task.ID = t.m.nextID
	task.Status = models.TaskPending
	t.m.tasks = append(t.m.tasks, task)
	return nil
}

type recordingHub struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHub) BroadcastMessage(msgType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgType)
}

const (
	testDriverID = int64(10)
	testHostID   = int64(20)
	testOtherID  = int64(30)
)

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestBookingService(t *testing.T) (*BookingService, *memStore, *recordingHub) {
	t.Helper()

	store := newMemStore()
	height := 7.0
	store.driveways[1] = &models.Driveway{
		ID:               1,
		HostID:           testHostID,
		Title:            "Downtown driveway",
		Address:          "100 Queen St W, Toronto",
		Latitude:         43.6532,
		Longitude:        -79.3832,
		HourlyRate:       15,
		MaxVehicleLength: 18,
		MaxVehicleWidth:  7,
		MaxVehicleHeight: &height,
		IsAvailable:      true,
		ListingStatus:    models.ListingActive,
	}
	store.driveways[2] = &models.Driveway{
		ID:               2,
		HostID:           testHostID,
		Title:            "Closed driveway",
		HourlyRate:       10,
		MaxVehicleLength: 18,
		MaxVehicleWidth:  7,
		IsAvailable:      false,
		ListingStatus:    models.ListingActive,
	}
	store.driveways[3] = &models.Driveway{
		ID:               3,
		HostID:           testHostID,
		Title:            "Compact spot",
		HourlyRate:       10,
		MaxVehicleLength: 14,
		MaxVehicleWidth:  6,
		IsAvailable:      true,
		ListingStatus:    models.ListingActive,
	}

	teslaID := int64(987654)
	store.vehicles[1] = &models.Vehicle{ID: 1, UserID: testDriverID, Make: "Tesla", Model: "Model 3", Length: 15.4, Width: 6.1, TeslaID: &teslaID}
	store.vehicles[2] = &models.Vehicle{ID: 2, UserID: testDriverID, Make: "Ford", Model: "F-150", Length: 17.4, Width: 6.7}
	store.nextID = 100

	hub := &recordingHub{}
	svc := NewBookingService(zap.NewNop(), store, hub)
	svc.now = func() time.Time { return testNow }
	return svc, store, hub
}

func bookingInput(drivewayID, vehicleID int64, startIn, length time.Duration) CreateBookingInput {
	start := testNow.Add(startIn)
	return CreateBookingInput{
		DriverID:   testDriverID,
		VehicleID:  vehicleID,
		DrivewayID: drivewayID,
		StartTime:  start,
		EndTime:    start.Add(length),
	}
}

func TestCreateBooking_Success(t *testing.T) {
	svc, store, hub := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, 4*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, models.BookingConfirmed, bd.Status)
	assert.Regexp(t, `^DH-[A-Z0-9]{6}$`, bd.Reference)
	assert.Equal(t, 4, bd.TotalHours)
	assert.InDelta(t, 60.0, bd.Subtotal, 0.001)
	assert.InDelta(t, 9.0, bd.PlatformFee, 0.001)
	assert.InDelta(t, 69.0, bd.TotalAmount, 0.001)
	assert.InDelta(t, 51.0, bd.HostEarnings, 0.001)
	assert.Equal(t, testHostID, bd.HostID)

	nav := store.tasksOf(models.TaskNavigation)
	require.Len(t, nav, 1)
	assert.JSONEq(t, `{"user_id":10,"tesla_id":987654,"address":"100 Queen St W, Toronto","latitude":43.6532,"longitude":-79.3832}`, string(nav[0].Payload))
	assert.Len(t, store.tasksOf(models.TaskNotification), 2)
	assert.Equal(t, []string{MsgTypeBookingCreated}, hub.messages)
}

func TestCreateBooking_NonTeslaSkipsNavigation(t *testing.T) {
	svc, store, _ := newTestBookingService(t)

	_, err := svc.CreateBooking(context.Background(), bookingInput(1, 2, 48*time.Hour, 2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, store.tasksOf(models.TaskNavigation))
}

func TestCreateBooking_TimeValidationBeforeDatabase(t *testing.T) {
	tests := []struct {
		name string
		in   CreateBookingInput
		code string
	}{
		{"start in past", bookingInput(1, 1, -time.Hour, 2*time.Hour), apperr.CodeStartInPast},
		{"end before start", bookingInput(1, 1, time.Hour, -time.Hour), apperr.CodeInvalidTimeRange},
		{"zero length", bookingInput(1, 1, time.Hour, 0), apperr.CodeInvalidTimeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestBookingService(t)

			_, err := svc.CreateBooking(context.Background(), tt.in)
			require.Error(t, err)

			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, 400, appErr.Status)
			assert.Zero(t, store.txCount)
		})
	}
}

func TestCreateBooking_BusinessRules(t *testing.T) {
	tests := []struct {
		name   string
		in     CreateBookingInput
		code   string
		status int
	}{
		{"driveway unavailable", bookingInput(2, 1, 48*time.Hour, time.Hour), apperr.CodeDrivewayNotAvailable, 400},
		{"vehicle too large", bookingInput(3, 2, 48*time.Hour, time.Hour), apperr.CodeVehicleTooLarge, 400},
		{"unknown driveway", bookingInput(99, 1, 48*time.Hour, time.Hour), apperr.CodeNotFound, 404},
		{"unknown vehicle", bookingInput(1, 99, 48*time.Hour, time.Hour), apperr.CodeNotFound, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestBookingService(t)

			_, err := svc.CreateBooking(context.Background(), tt.in)
			appErr, ok := apperr.As(err)
			require.True(t, ok, "expected app error, got %v", err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Empty(t, store.bookings)
			assert.Empty(t, store.tasks)
		})
	}
}

func TestCreateBooking_DeactivatedListing(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	// 车位服务与预订共用同一份车位数据
	drivewaySvc := NewDrivewayService(zap.NewNop(), &memDriveways{driveways: store.driveways}, newMemUsers(), nil)
	ctx := context.Background()

	require.NoError(t, drivewaySvc.Deactivate(ctx, testHostID, 1))
	assert.True(t, store.driveways[1].IsAvailable)

	_, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, time.Hour))
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected app error, got %v", err)
	assert.Equal(t, apperr.CodeDrivewayNotAvailable, appErr.Code)
	assert.Empty(t, store.bookings)
	assert.Empty(t, store.tasks)
}

func TestCreateBooking_VehicleOfAnotherDriver(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	in := bookingInput(1, 1, 48*time.Hour, time.Hour)
	in.DriverID = testOtherID

	_, err := svc.CreateBooking(context.Background(), in)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestCreateBooking_Conflict(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, 4*time.Hour))
	require.NoError(t, err)

	// 与已有预订部分重叠
	_, err = svc.CreateBooking(ctx, bookingInput(1, 2, 50*time.Hour, 4*time.Hour))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeBookingConflict, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Len(t, store.bookings, 1)

	// 紧接其后的时间段不冲突
	_, err = svc.CreateBooking(ctx, bookingInput(1, 2, 52*time.Hour, 2*time.Hour))
	assert.NoError(t, err)
}

func TestCreateBooking_CancelledBookingFreesSlot(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, bookingInput(1, 1, 72*time.Hour, 2*time.Hour))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, testDriverID, first.ID, "plans changed")
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, bookingInput(1, 2, 72*time.Hour, 2*time.Hour))
	assert.NoError(t, err)
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, 2*time.Hour))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		if err == nil {
			ok++
		} else if apperr.IsCode(err, apperr.CodeBookingConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
	assert.Len(t, store.bookings, 1)
}

func TestCreateBooking_RetriesReferenceCollision(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	store.refs["DH-AAAAAA"] = true

	refs := []string{"DH-AAAAAA", "DH-AAAAAA", "DH-BBBBBB"}
	svc.newRef = func() (string, error) {
		r := refs[0]
		refs = refs[1:]
		return r, nil
	}

	bd, err := svc.CreateBooking(context.Background(), bookingInput(1, 1, 48*time.Hour, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "DH-BBBBBB", bd.Reference)
	assert.Len(t, store.tasksOf(models.TaskNotification), 2)
}

func TestCreateBooking_ReferenceCollisionExhausted(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	store.refs["DH-AAAAAA"] = true
	svc.newRef = func() (string, error) { return "DH-AAAAAA", nil }

	_, err := svc.CreateBooking(context.Background(), bookingInput(1, 1, 48*time.Hour, time.Hour))
	require.Error(t, err)
	assert.True(t, apperr.IsUniqueViolation(err))
}

func TestCancelBooking(t *testing.T) {
	tests := []struct {
		name    string
		startIn time.Duration
		actor   int64
		code    string
	}{
		{"driver more than 24h ahead", 25 * time.Hour, testDriverID, ""},
		{"exactly 24h ahead", 24 * time.Hour, testDriverID, ""},
		{"host more than 24h ahead", 48 * time.Hour, testHostID, ""},
		{"less than 24h ahead", 23 * time.Hour, testDriverID, apperr.CodeCancellationTooLate},
		{"stranger", 48 * time.Hour, testOtherID, apperr.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestBookingService(t)
			ctx := context.Background()

			bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, tt.startIn, 2*time.Hour))
			require.NoError(t, err)

			got, err := svc.CancelBooking(ctx, tt.actor, bd.ID, "no longer needed")
			if tt.code != "" {
				assert.True(t, apperr.IsCode(err, tt.code), "expected %s, got %v", tt.code, err)
				assert.Equal(t, models.BookingConfirmed, store.bookings[bd.ID].Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.BookingCancelled, got.Status)
			require.NotNil(t, got.CancelledAt)
			assert.Equal(t, testNow, *got.CancelledAt)
			require.NotNil(t, got.CancellationReason)
			assert.Equal(t, "no longer needed", *got.CancellationReason)
			assert.Equal(t, models.BookingCancelled, store.bookings[bd.ID].Status)
		})
	}
}

func TestCancelBooking_NotFound(t *testing.T) {
	svc, _, _ := newTestBookingService(t)

	_, err := svc.CancelBooking(context.Background(), testDriverID, 12345, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, 2*time.Hour))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, testDriverID, bd.ID, "")
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, testDriverID, bd.ID, "")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidTransition, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestBookingLifecycle(t *testing.T) {
	svc, store, hub := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, time.Hour, 3*time.Hour))
	require.NoError(t, err)

	// 未到达前不能完成
	_, err = svc.CompleteBooking(ctx, testDriverID, bd.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))

	_, err = svc.MarkArrival(ctx, testHostID, bd.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	active, err := svc.MarkArrival(ctx, SystemActor, bd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingActive, active.Status)
	require.NotNil(t, active.ArrivalDetectedAt)

	// 到达后不能取消
	_, err = svc.CancelBooking(ctx, testDriverID, bd.ID, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))

	done, err := svc.CompleteBooking(ctx, testHostID, bd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, done.Status)
	require.NotNil(t, done.DepartureDetectedAt)
	assert.Equal(t, models.BookingCompleted, store.bookings[bd.ID].Status)

	earnings, err := svc.HostEarnings(ctx, testHostID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), earnings.CompletedBookings)
	assert.InDelta(t, bd.HostEarnings, earnings.TotalEarnings, 0.001)

	assert.Equal(t, []string{MsgTypeBookingCreated, MsgTypeBookingUpdated, MsgTypeBookingUpdated}, hub.messages)
}

func TestMarkNoShow(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, time.Hour, 2*time.Hour))
	require.NoError(t, err)

	_, err = svc.MarkNoShow(ctx, testHostID, bd.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNoShowTooEarly))

	_, err = svc.MarkNoShow(ctx, testDriverID, bd.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	svc.now = func() time.Time { return testNow.Add(90 * time.Minute) }
	got, err := svc.MarkNoShow(ctx, testHostID, bd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingNoShow, got.Status)
}

func TestReportLocation(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, time.Hour, 3*time.Hour))
	require.NoError(t, err)

	// 约 1.1 km 外
	res, err := svc.ReportLocation(ctx, testDriverID, bd.ID, 43.6632, -79.3832)
	require.NoError(t, err)
	assert.False(t, res.Arrived)
	assert.Greater(t, res.DistanceMeters, 1000.0)
	assert.Equal(t, models.BookingConfirmed, res.Booking.Status)

	// 约 30 m
	res, err = svc.ReportLocation(ctx, testDriverID, bd.ID, 43.6535, -79.3832)
	require.NoError(t, err)
	assert.True(t, res.Arrived)
	assert.Equal(t, models.BookingActive, res.Booking.Status)

	res, err = svc.ReportLocation(ctx, testDriverID, bd.ID, 43.6535, -79.3832)
	require.NoError(t, err)
	assert.False(t, res.Departed)

	res, err = svc.ReportLocation(ctx, testDriverID, bd.ID, 43.6632, -79.3832)
	require.NoError(t, err)
	assert.True(t, res.Departed)
	assert.Equal(t, models.BookingCompleted, res.Booking.Status)

	_, err = svc.ReportLocation(ctx, testHostID, bd.ID, 43.6535, -79.3832)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	_, err = svc.ReportLocation(ctx, testDriverID, bd.ID, 43.6535, -79.3832)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))
}

func TestGetBooking_ParticipantsOnly(t *testing.T) {
	svc, _, _ := newTestBookingService(t)
	ctx := context.Background()

	bd, err := svc.CreateBooking(ctx, bookingInput(1, 1, 48*time.Hour, time.Hour))
	require.NoError(t, err)

	_, err = svc.GetBooking(ctx, testDriverID, bd.ID)
	assert.NoError(t, err)
	_, err = svc.GetBooking(ctx, testHostID, bd.ID)
	assert.NoError(t, err)
	_, err = svc.GetBooking(ctx, testOtherID, bd.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}

func TestFindUpcoming(t *testing.T) {
	svc, store, _ := newTestBookingService(t)
	ctx := context.Background()

	soon, err := svc.CreateBooking(ctx, bookingInput(1, 1, 30*time.Minute, time.Hour))
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, bookingInput(1, 1, 10*time.Hour, time.Hour))
	require.NoError(t, err)

	// 导航任务仍在 outbox 中等待投递
	upcoming, err := svc.FindUpcoming(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	store.settleTasks(models.TaskNavigation, models.TaskFailed)
	upcoming, err = svc.FindUpcoming(ctx, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, soon.ID, upcoming[0].ID)

	require.NoError(t, svc.MarkNavigationSent(ctx, soon.ID))
	upcoming, err = svc.FindUpcoming(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}

func TestListDriverBookings_Pagination(t *testing.T) {
	svc, _, _ := newTestBookingService(t)

	page, err := svc.ListDriverBookings(context.Background(), testDriverID, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.NotNil(t, page.Bookings)
	assert.Empty(t, page.Bookings)
}

func TestGenerateReference(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		ref, err := generateReference()
		require.NoError(t, err)
		assert.Regexp(t, `^DH-[A-Z0-9]{6}$`, ref)
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 45)
}
