package demo

import "time"

// Waypoint 预录轨迹点，At 为行程开始后的秒数
type Waypoint struct {
	At        float64 `json:"at"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     int     `json:"speed"`
	Battery   int     `json:"battery"`
	Distance  float64 `json:"distance_remaining"`
}

// journey York 到 Mississauga，按 At 升序
var journey = []Waypoint{
	{At: 0, Latitude: 43.689042, Longitude: -79.451344, Speed: 0, Battery: 78, Distance: 25000},
	{At: 30, Latitude: 43.686123, Longitude: -79.458901, Speed: 25, Battery: 77, Distance: 23500},
	{At: 60, Latitude: 43.682045, Longitude: -79.468234, Speed: 35, Battery: 77, Distance: 22000},
	{At: 90, Latitude: 43.675678, Longitude: -79.485432, Speed: 40, Battery: 76, Distance: 19500},
	{At: 120, Latitude: 43.668901, Longitude: -79.502109, Speed: 45, Battery: 75, Distance: 17000},
	{At: 180, Latitude: 43.655432, Longitude: -79.525678, Speed: 38, Battery: 74, Distance: 14200},
	{At: 240, Latitude: 43.642109, Longitude: -79.548901, Speed: 42, Battery: 73, Distance: 11500},
	{At: 300, Latitude: 43.628234, Longitude: -79.572345, Speed: 35, Battery: 72, Distance: 8800},
	{At: 360, Latitude: 43.614567, Longitude: -79.595432, Speed: 30, Battery: 71, Distance: 6200},
	{At: 420, Latitude: 43.600891, Longitude: -79.618765, Speed: 25, Battery: 70, Distance: 3500},
	{At: 480, Latitude: 43.587234, Longitude: -79.642109, Speed: 20, Battery: 70, Distance: 1800},
	{At: 540, Latitude: 43.578901, Longitude: -79.665432, Speed: 15, Battery: 69, Distance: 800},
	{At: 600, Latitude: 43.571234, Longitude: -79.684567, Speed: 0, Battery: 69, Distance: 0},
}

// Waypoints 返回轨迹副本
func Waypoints() []Waypoint {
	out := make([]Waypoint, len(journey))
	copy(out, journey)
	return out
}

// 事件来源
const (
	SourceSystem  = "System"
	SourceTesla   = "Tesla"
	SourceBooking = "Booking"
	SourcePayment = "Payment"
)

// 事件级别
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
)

// Milestone 会话开始后 At 时刻触发一次的事件
type Milestone struct {
	Key     string
	At      time.Duration
	Source  string
	Level   string
	Message string
}

// milestones 按 At 升序
var milestones = []Milestone{
	{"setup_start", 0, SourceSystem, LevelInfo, "Live demo started - Initializing systems"},
	{"setup_auth", 6 * time.Second, SourceTesla, LevelInfo, "Driver authorizing Tesla vehicle..."},
	{"setup_fleet", 10 * time.Second, SourceTesla, LevelInfo, "Connecting to Tesla Fleet API..."},
	{"setup_oauth", 15 * time.Second, SourceTesla, LevelSuccess, "Tesla OAuth completed successfully"},
	{"setup_sync", 20 * time.Second, SourceSystem, LevelInfo, "Vehicle data synchronized"},
	{"setup_ready", 25 * time.Second, SourceSystem, LevelSuccess, "Platform ready for live tracking"},
	{"booking_search", 30 * time.Second, SourceBooking, LevelInfo, "Searching for driveways with EV charging near Mississauga..."},
	{"booking_found", 38 * time.Second, SourceSystem, LevelInfo, "Found 3 driveways with EV charging"},
	{"booking_selected", 45 * time.Second, SourceBooking, LevelSuccess, "Driveway selected in Mississauga"},
	{"booking_confirmed", 60 * time.Second, SourceBooking, LevelSuccess, "Booking confirmed - " + Reference},
	{"booking_nav", 65 * time.Second, SourceTesla, LevelInfo, "Navigation coordinates sent to vehicle"},
	{"booking_payment", 80 * time.Second, SourcePayment, LevelSuccess, "Payment processed - $69.00 (4 hours @ $15/hr + fees)"},
	{"booking_host", 85 * time.Second, SourceSystem, LevelSuccess, "Host notified of upcoming arrival"},
	{"journey_start", 120 * time.Second, SourceTesla, LevelSuccess, "Journey started - Departing from York"},
	{"journey_5km", 216 * time.Second, SourceTesla, LevelSuccess, "Milestone: 5km completed - 20km remaining"},
	{"journey_halfway", 360 * time.Second, SourceTesla, LevelSuccess, "Milestone: Halfway point reached"},
	{"journey_20km", 456 * time.Second, SourceTesla, LevelWarning, "Milestone: 5km from destination - Preparing arrival"},
	{"journey_2km", 552 * time.Second, SourceTesla, LevelWarning, "2km from destination - Host notified"},
	{"journey_500m", 584 * time.Second, SourceTesla, LevelWarning, "Approaching destination - 500m away"},
	{"arrival", 600 * time.Second, SourceTesla, LevelSuccess, "Vehicle arrived at driveway"},
	{"arrival_detected", 605 * time.Second, SourceSystem, LevelSuccess, "Automatic arrival detection triggered - Within 100m radius"},
	{"arrival_active", 620 * time.Second, SourcePayment, LevelInfo, "Booking status changed to Active"},
	{"complete", 660 * time.Second, SourceSystem, LevelSuccess, "Demo complete"},
}

// Reference 演示预订编号
const Reference = "DH-DEMO01"
