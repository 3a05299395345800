package tesla

import "time"

// Vehicle Fleet API 车辆列表项
type Vehicle struct {
	ID          int64  `json:"id"`
	VehicleID   int64  `json:"vehicle_id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"` // online, asleep, offline
	InService   bool   `json:"in_service"`
	Color       string `json:"color,omitempty"`
}

// VehicleData 车辆完整数据
type VehicleData struct {
	ID            int64          `json:"id"`
	VehicleID     int64          `json:"vehicle_id"`
	VIN           string         `json:"vin"`
	DisplayName   string         `json:"display_name"`
	State         string         `json:"state"`
	ChargeState   *ChargeState   `json:"charge_state,omitempty"`
	DriveState    *DriveState    `json:"drive_state,omitempty"`
	VehicleState  *VehicleState  `json:"vehicle_state,omitempty"`
	VehicleConfig *VehicleConfig `json:"vehicle_config,omitempty"`
}

// Location 车辆当前位置，无 drive_state 时返回 false
func (d *VehicleData) Location() (lat, lng float64, ok bool) {
	if d == nil || d.DriveState == nil {
		return 0, 0, false
	}
	return d.DriveState.Latitude, d.DriveState.Longitude, true
}

// ChargeState 充电状态
type ChargeState struct {
	BatteryLevel      int     `json:"battery_level"`
	BatteryRange      float64 `json:"battery_range"` // 英里
	ChargingState     string  `json:"charging_state"`
	ChargeLimitSoc    int     `json:"charge_limit_soc"`
	ChargerPower      int     `json:"charger_power"`
	MinutesToFull     int     `json:"minutes_to_full_charge"`
	ChargePortLatched string  `json:"charge_port_latch"`
	Timestamp         int64   `json:"timestamp"`
}

// DriveState 驾驶状态
type DriveState struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Heading    int     `json:"heading"`
	Speed      *int    `json:"speed,omitempty"`       // 英里/小时, nil 表示停止
	ShiftState *string `json:"shift_state,omitempty"` // D, R, P, N
	Timestamp  int64   `json:"timestamp"`
}

// VehicleState 车辆状态
type VehicleState struct {
	Odometer    float64 `json:"odometer"` // 英里
	Locked      bool    `json:"locked"`
	SentryMode  bool    `json:"sentry_mode"`
	VehicleName string  `json:"vehicle_name"`
	Timestamp   int64   `json:"timestamp"`
}

// VehicleConfig 车辆配置
type VehicleConfig struct {
	CarType       string `json:"car_type"`
	ExteriorColor string `json:"exterior_color"`
	TrimBadging   string `json:"trim_badging"`
	WheelType     string `json:"wheel_type"`
}

// CommandResult 指令执行结果
type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

// MilesToKm 英里转公里
func MilesToKm(miles float64) float64 {
	return miles * 1.60934
}

// ParseTimestamp 解析 Tesla API 时间戳 (毫秒)
func ParseTimestamp(ts int64) time.Time {
	return time.UnixMilli(ts)
}
