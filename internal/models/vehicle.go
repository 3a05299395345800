package models

import "time"

// Vehicle 车辆信息（车主名下）
type Vehicle struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Make           string    `json:"make" db:"make"`
	Model          string    `json:"model" db:"model"`
	Year           int       `json:"year" db:"year"`
	Color          string    `json:"color" db:"color"`
	LicensePlate   string    `json:"license_plate" db:"license_plate"`
	Length         float64   `json:"length" db:"length"`
	Width          float64   `json:"width" db:"width"`
	Height         *float64  `json:"height,omitempty" db:"height"`
	VIN            *string   `json:"vin,omitempty" db:"vin"`
	TeslaID        *int64    `json:"tesla_id,omitempty" db:"tesla_id"`                 // Fleet API 请求路径使用的 id
	TeslaVehicleID *int64    `json:"tesla_vehicle_id,omitempty" db:"tesla_vehicle_id"` // Fleet API 的 vehicle_id
	DisplayName    string    `json:"display_name" db:"display_name"`
	BatteryLevel   *int      `json:"battery_level,omitempty" db:"battery_level"`
	Latitude       *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// IsTesla 是否已关联 Tesla 账号
func (v *Vehicle) IsTesla() bool {
	return v.TeslaID != nil
}

// Label 展示名称，未命名时使用品牌与车型
func (v *Vehicle) Label() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return v.Make + " " + v.Model
}
