package pricing

import (
	"errors"
	"math"
	"time"
)

// PlatformFeePercent 平台抽成比例（统一 15%）
const PlatformFeePercent = 15

var (
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrInvalidRate      = errors.New("hourly rate must be positive")
)

// Quote 价格明细
type Quote struct {
	HourlyRate   float64 `json:"hourly_rate"`
	TotalHours   int     `json:"total_hours"`
	Subtotal     float64 `json:"subtotal"`
	PlatformFee  float64 `json:"platform_fee"`
	TotalAmount  float64 `json:"total_amount"`
	HostEarnings float64 `json:"host_earnings"`
}

// Calculate 按小时向上取整计算价格，金额以分为单位运算
func Calculate(hourlyRate float64, start, end time.Time) (Quote, error) {
	if !end.After(start) {
		return Quote{}, ErrInvalidTimeRange
	}
	if hourlyRate <= 0 || math.IsNaN(hourlyRate) || math.IsInf(hourlyRate, 0) {
		return Quote{}, ErrInvalidRate
	}

	hours := BillableHours(start, end)
	rateCents := toCents(hourlyRate)
	subtotal := int64(hours) * rateCents
	// 四舍五入到分
	fee := (subtotal*PlatformFeePercent + 50) / 100

	return Quote{
		HourlyRate:   fromCents(rateCents),
		TotalHours:   hours,
		Subtotal:     fromCents(subtotal),
		PlatformFee:  fromCents(fee),
		TotalAmount:  fromCents(subtotal + fee),
		HostEarnings: fromCents(subtotal - fee),
	}, nil
}

// BillableHours 计费小时数，不足一小时按一小时
func BillableHours(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours()))
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}
