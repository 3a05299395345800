package tesla

import (
	"strings"
	"time"
)

// VIN 第 4 位：车型
var vinModels = map[byte]string{
	'3': "Model 3",
	'Y': "Model Y",
	'S': "Model S",
	'X': "Model X",
}

// VIN 第 10 位：年款
var vinYears = map[byte]int{
	'J': 2018,
	'K': 2019,
	'L': 2020,
	'M': 2021,
	'N': 2022,
	'P': 2023,
	'R': 2024,
	'S': 2025,
}

// DecodeVIN 按固定位置查表推断车型和年款。
// 只覆盖已知的字符，表外的 VIN 会得到 "Unknown" 或当前年份，结果是近似值。
func DecodeVIN(vin string) (model string, year int) {
	return decodeVIN(vin, time.Now())
}

func decodeVIN(vin string, now time.Time) (string, int) {
	vin = strings.ToUpper(strings.TrimSpace(vin))

	model := "Unknown"
	if len(vin) > 3 {
		if m, ok := vinModels[vin[3]]; ok {
			model = m
		}
	}

	year := now.Year()
	if len(vin) > 9 {
		if y, ok := vinYears[vin[9]]; ok {
			year = y
		}
	}

	return model, year
}

// Dimensions 车型默认尺寸（英尺：长、宽、高）
func Dimensions(model string) (length, width, height float64) {
	switch model {
	case "Model S":
		return 16.4, 6.5, 4.7
	case "Model X":
		return 16.5, 6.6, 5.4
	case "Model Y":
		return 15.6, 6.3, 5.3
	default:
		return 15.4, 6.1, 4.7
	}
}
