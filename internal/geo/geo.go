package geo

import "math"

const earthRadiusMeters = 6371000.0

// ArrivalThresholdMeters 到达判定距离
const ArrivalThresholdMeters = 100.0

// DistanceMeters 两点间大圆距离（haversine）
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Within 是否在给定半径内
func Within(lat1, lng1, lat2, lng2, meters float64) bool {
	return DistanceMeters(lat1, lng1, lat2, lng2) <= meters
}

// BoundingBox 以中心点和半径（公里）计算经纬度范围，用于粗筛
func BoundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / 111.32
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLng := radiusKm / (111.32 * cosLat)
	return lat - dLat, lat + dLat, lng - dLng, lng + dLng
}
