package models

import "time"

// 车位上架状态
const (
	ListingActive   = "active"
	ListingInactive = "inactive"
)

// Driveway 车位
type Driveway struct {
	ID                 int64     `json:"id" db:"id"`
	HostID             int64     `json:"host_id" db:"host_id"`
	Title              string    `json:"title" db:"title"`
	Description        string    `json:"description" db:"description"`
	Address            string    `json:"address" db:"address"`
	City               string    `json:"city" db:"city"`
	State              string    `json:"state" db:"state"`
	ZipCode            string    `json:"zip_code" db:"zip_code"`
	Latitude           float64   `json:"latitude" db:"latitude"`
	Longitude          float64   `json:"longitude" db:"longitude"`
	DrivewayType       string    `json:"driveway_type" db:"driveway_type"`
	HourlyRate         float64   `json:"hourly_rate" db:"hourly_rate"`
	DailyRate          *float64  `json:"daily_rate,omitempty" db:"daily_rate"`
	MaxVehicleLength   float64   `json:"max_vehicle_length" db:"max_vehicle_length"`
	MaxVehicleWidth    float64   `json:"max_vehicle_width" db:"max_vehicle_width"`
	MaxVehicleHeight   *float64  `json:"max_vehicle_height,omitempty" db:"max_vehicle_height"`
	IsAvailable        bool      `json:"is_available" db:"is_available"`
	HasEVCharging      bool      `json:"has_ev_charging" db:"has_ev_charging"`
	IsCovered          bool      `json:"is_covered" db:"is_covered"`
	HasSecurityCamera  bool      `json:"has_security_camera" db:"has_security_camera"`
	AccessInstructions string    `json:"access_instructions" db:"access_instructions"`
	ListingStatus      string    `json:"listing_status" db:"listing_status"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	// 搜索结果附带的距离（公里）
	DistanceKm *float64 `json:"distance_km,omitempty" db:"-"`
}

// Bookable 车位是否可预订
func (d *Driveway) Bookable() bool {
	return d.IsAvailable && d.ListingStatus != ListingInactive
}

// Fits 检查车辆尺寸是否适合该车位，限高只在车位设置了限高时检查
func (d *Driveway) Fits(v *Vehicle) bool {
	if v.Length > d.MaxVehicleLength || v.Width > d.MaxVehicleWidth {
		return false
	}
	if d.MaxVehicleHeight != nil && v.Height != nil && *v.Height > *d.MaxVehicleHeight {
		return false
	}
	return true
}
