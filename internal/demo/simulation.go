package demo

import (
	"math"
	"sort"
	"time"
)

// Phase 演示阶段
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseBooking  Phase = "booking"
	PhaseJourney  Phase = "journey"
	PhaseArrival  Phase = "arrival"
	PhaseComplete Phase = "complete"
)

const (
	bookingStart  = 30 * time.Second
	journeyStart  = 120 * time.Second
	journeyEnd    = 600 * time.Second
	arrivalEnd    = 660 * time.Second
	dedupWindow   = 5 * time.Second
	maxFeedEvents = 50
)

// PhaseAt 根据会话已运行时间返回阶段
func PhaseAt(elapsed time.Duration) Phase {
	switch {
	case elapsed < bookingStart:
		return PhaseSetup
	case elapsed < journeyStart:
		return PhaseBooking
	case elapsed < journeyEnd:
		return PhaseJourney
	case elapsed < arrivalEnd:
		return PhaseArrival
	default:
		return PhaseComplete
	}
}

// PositionAt 在轨迹表上线性插值，超出范围时取首尾点
func PositionAt(seconds float64) Waypoint {
	first, last := journey[0], journey[len(journey)-1]
	if seconds <= first.At {
		return first
	}
	if seconds >= last.At {
		return last
	}

	i := sort.Search(len(journey), func(i int) bool { return journey[i].At > seconds })
	a, b := journey[i-1], journey[i]
	t := (seconds - a.At) / (b.At - a.At)

	return Waypoint{
		At:        seconds,
		Latitude:  lerp(a.Latitude, b.Latitude, t),
		Longitude: lerp(a.Longitude, b.Longitude, t),
		Speed:     int(math.Round(lerp(float64(a.Speed), float64(b.Speed), t))),
		Battery:   int(math.Round(lerp(float64(a.Battery), float64(b.Battery), t))),
		Distance:  math.Round(lerp(a.Distance, b.Distance, t)),
	}
}

// JourneyPosition 会话时间映射到轨迹时间：行程阶段的 480 秒铺满 600 秒的轨迹
func JourneyPosition(elapsed time.Duration) Waypoint {
	span := journey[len(journey)-1].At
	progress := (elapsed - journeyStart).Seconds() / (journeyEnd - journeyStart).Seconds()
	return PositionAt(progress * span)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Event 事件流中的一条
type Event struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Simulation 一次演示会话的状态：已触发的里程碑和事件流
type Simulation struct {
	seen   map[string]bool
	feed   []Event
	recent map[string]time.Time
}

// NewSimulation 创建空会话
func NewSimulation() *Simulation {
	return &Simulation{
		seen:   make(map[string]bool),
		recent: make(map[string]time.Time),
	}
}

// Advance 触发 elapsed 之前尚未触发的里程碑，返回本次新增的事件
func (s *Simulation) Advance(elapsed time.Duration, now time.Time) []Event {
	var fired []Event
	for _, m := range milestones {
		if m.At > elapsed {
			break
		}
		if s.seen[m.Key] {
			continue
		}
		s.seen[m.Key] = true
		if e, ok := s.Add(now, m.Source, m.Level, m.Message); ok {
			fired = append(fired, e)
		}
	}
	return fired
}

// Add 追加事件；5 秒内相同文本的事件被丢弃，事件流最多保留 50 条
func (s *Simulation) Add(now time.Time, source, level, message string) (Event, bool) {
	if last, ok := s.recent[message]; ok && now.Sub(last) < dedupWindow {
		return Event{}, false
	}
	s.recent[message] = now

	e := Event{At: now, Source: source, Level: level, Message: message}
	s.feed = append(s.feed, e)
	if len(s.feed) > maxFeedEvents {
		s.feed = s.feed[len(s.feed)-maxFeedEvents:]
	}
	return e, true
}

// Feed 事件流副本，最新在后
func (s *Simulation) Feed() []Event {
	out := make([]Event, len(s.feed))
	copy(out, s.feed)
	return out
}
