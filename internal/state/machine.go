package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/langchou/drivewayhub/internal/models"
)

// 预订事件
const (
	EventConfirm  = "confirm"
	EventArrive   = "arrive"
	EventDepart   = "depart"
	EventComplete = "complete"
	EventCancel   = "cancel"
	EventNoShow   = "no_show"
)

// ErrInvalidTransition 当前状态不允许该事件
var ErrInvalidTransition = errors.New("invalid booking status transition")

func bookingEvents() fsm.Events {
	return fsm.Events{
		{Name: EventConfirm, Src: []string{models.BookingPending}, Dst: models.BookingConfirmed},
		{Name: EventArrive, Src: []string{models.BookingConfirmed}, Dst: models.BookingActive},

		// 离开检测或手动完成
		{Name: EventDepart, Src: []string{models.BookingActive}, Dst: models.BookingCompleted},
		{Name: EventComplete, Src: []string{models.BookingActive}, Dst: models.BookingCompleted},

		{Name: EventCancel, Src: []string{models.BookingPending, models.BookingConfirmed}, Dst: models.BookingCancelled},
		{Name: EventNoShow, Src: []string{models.BookingConfirmed}, Dst: models.BookingNoShow},
	}
}

// Machine 预订状态机
type Machine struct {
	mu            sync.Mutex
	bookingID     int64
	fsm           *fsm.FSM
	onStateChange func(bookingID int64, from, to string)
}

// NewMachine 创建状态机
func NewMachine(bookingID int64, current string, onStateChange func(bookingID int64, from, to string)) *Machine {
	if current == "" {
		current = models.BookingPending
	}

	m := &Machine{
		bookingID:     bookingID,
		onStateChange: onStateChange,
	}

	m.fsm = fsm.NewFSM(
		current,
		bookingEvents(),
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.bookingID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// Trigger 触发事件，返回新状态
func (m *Machine) Trigger(ctx context.Context, event string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		return m.fsm.Current(), fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, m.fsm.Current())
	}

	if err := m.fsm.Event(ctx, event); err != nil {
		return m.fsm.Current(), fmt.Errorf("trigger event %s: %w", event, err)
	}

	return m.fsm.Current(), nil
}

// Can 检查是否可以触发事件
func (m *Machine) Can(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Can(event)
}

// Next 不改变状态，计算事件的目标状态
func Next(current, event string) (string, error) {
	m := NewMachine(0, current, nil)
	return m.Trigger(context.Background(), event)
}

// IsTerminal 是否终态
func IsTerminal(status string) bool {
	switch status {
	case models.BookingCompleted, models.BookingCancelled, models.BookingNoShow:
		return true
	}
	return false
}
