package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/drivewayhub/internal/geo"
	"github.com/langchou/drivewayhub/internal/models"
)

// DrivewayRepository 车位数据仓库
type DrivewayRepository struct {
	db *DB
}

// NewDrivewayRepository 创建车位仓库
func NewDrivewayRepository(db *DB) *DrivewayRepository {
	return &DrivewayRepository{db: db}
}

const drivewayColumns = `id, host_id, title, description, address, city, state, zip_code, latitude, longitude,
	driveway_type, hourly_rate, daily_rate, max_vehicle_length, max_vehicle_width, max_vehicle_height,
	is_available, has_ev_charging, is_covered, has_security_camera, access_instructions, listing_status,
	created_at, updated_at`

func scanDriveway(row pgx.Row) (*models.Driveway, error) {
	d := &models.Driveway{}
	err := row.Scan(
		&d.ID,
		&d.HostID,
		&d.Title,
		&d.Description,
		&d.Address,
		&d.City,
		&d.State,
		&d.ZipCode,
		&d.Latitude,
		&d.Longitude,
		&d.DrivewayType,
		&d.HourlyRate,
		&d.DailyRate,
		&d.MaxVehicleLength,
		&d.MaxVehicleWidth,
		&d.MaxVehicleHeight,
		&d.IsAvailable,
		&d.HasEVCharging,
		&d.IsCovered,
		&d.HasSecurityCamera,
		&d.AccessInstructions,
		&d.ListingStatus,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func collectDriveways(rows pgx.Rows) ([]*models.Driveway, error) {
	defer rows.Close()

	var driveways []*models.Driveway
	for rows.Next() {
		d, err := scanDriveway(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driveway: %w", err)
		}
		driveways = append(driveways, d)
	}
	return driveways, rows.Err()
}

// Create 创建车位
func (r *DrivewayRepository) Create(ctx context.Context, d *models.Driveway) error {
	query := `
		INSERT INTO driveways (
			host_id, title, description, address, city, state, zip_code, latitude, longitude,
			driveway_type, hourly_rate, daily_rate, max_vehicle_length, max_vehicle_width, max_vehicle_height,
			is_available, has_ev_charging, is_covered, has_security_camera, access_instructions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, listing_status, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		d.HostID,
		d.Title,
		d.Description,
		d.Address,
		d.City,
		d.State,
		d.ZipCode,
		d.Latitude,
		d.Longitude,
		d.DrivewayType,
		d.HourlyRate,
		d.DailyRate,
		d.MaxVehicleLength,
		d.MaxVehicleWidth,
		d.MaxVehicleHeight,
		d.IsAvailable,
		d.HasEVCharging,
		d.IsCovered,
		d.HasSecurityCamera,
		d.AccessInstructions,
	).Scan(&d.ID, &d.ListingStatus, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert driveway: %w", err)
	}
	return nil
}

// GetByID 通过 ID 获取车位
func (r *DrivewayRepository) GetByID(ctx context.Context, id int64) (*models.Driveway, error) {
	d, err := scanDriveway(r.db.Pool.QueryRow(ctx, `SELECT `+drivewayColumns+` FROM driveways WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get driveway: %w", err)
	}
	return d, nil
}

// ListByHost 获取车主的车位
func (r *DrivewayRepository) ListByHost(ctx context.Context, hostID int64) ([]*models.Driveway, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+drivewayColumns+` FROM driveways WHERE host_id = $1 ORDER BY created_at DESC`, hostID)
	if err != nil {
		return nil, fmt.Errorf("list driveways by host: %w", err)
	}
	return collectDriveways(rows)
}

// SearchParams 车位搜索条件
type SearchParams struct {
	Latitude   float64
	Longitude  float64
	RadiusKm   float64
	EVCharging bool
	Limit      int
}

// SearchAvailable 按半径搜索可预订车位，按距离升序
func (r *DrivewayRepository) SearchAvailable(ctx context.Context, p SearchParams) ([]*models.Driveway, error) {
	if p.RadiusKm <= 0 {
		p.RadiusKm = 8
	}
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}

	minLat, maxLat, minLng, maxLng := geo.BoundingBox(p.Latitude, p.Longitude, p.RadiusKm)
	query := `SELECT ` + drivewayColumns + ` FROM driveways
		WHERE is_available = TRUE AND listing_status = 'active'
			AND latitude BETWEEN $1 AND $2
			AND longitude BETWEEN $3 AND $4
			AND ($5 = FALSE OR has_ev_charging = TRUE)`

	rows, err := r.db.Pool.Query(ctx, query, minLat, maxLat, minLng, maxLng, p.EVCharging)
	if err != nil {
		return nil, fmt.Errorf("search driveways: %w", err)
	}
	candidates, err := collectDriveways(rows)
	if err != nil {
		return nil, err
	}

	// 边界框粗筛后按真实距离过滤
	var result []*models.Driveway
	for _, d := range candidates {
		km := geo.DistanceMeters(p.Latitude, p.Longitude, d.Latitude, d.Longitude) / 1000
		if km > p.RadiusKm {
			continue
		}
		d.DistanceKm = &km
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return *result[i].DistanceKm < *result[j].DistanceKm
	})
	if len(result) > p.Limit {
		result = result[:p.Limit]
	}
	return result, nil
}

// ListAvailable 列出全部可预订车位
func (r *DrivewayRepository) ListAvailable(ctx context.Context, limit, offset int) ([]*models.Driveway, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+drivewayColumns+` FROM driveways
		WHERE is_available = TRUE AND listing_status = 'active'
		ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list available driveways: %w", err)
	}
	return collectDriveways(rows)
}

// SetAvailability 上下架
func (r *DrivewayRepository) SetAvailability(ctx context.Context, id, hostID int64, available bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE driveways SET is_available = $3, updated_at = NOW() WHERE id = $1 AND host_id = $2`, id, hostID, available)
	if err != nil {
		return fmt.Errorf("set driveway availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update 车主更新车位信息
func (r *DrivewayRepository) Update(ctx context.Context, d *models.Driveway) error {
	query := `
		UPDATE driveways SET
			title = $3, description = $4, address = $5, city = $6, state = $7, zip_code = $8,
			latitude = $9, longitude = $10, driveway_type = $11, hourly_rate = $12, daily_rate = $13,
			max_vehicle_length = $14, max_vehicle_width = $15, max_vehicle_height = $16,
			has_ev_charging = $17, is_covered = $18, has_security_camera = $19,
			access_instructions = $20, listing_status = $21, updated_at = NOW()
		WHERE id = $1 AND host_id = $2
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		d.ID,
		d.HostID,
		d.Title,
		d.Description,
		d.Address,
		d.City,
		d.State,
		d.ZipCode,
		d.Latitude,
		d.Longitude,
		d.DrivewayType,
		d.HourlyRate,
		d.DailyRate,
		d.MaxVehicleLength,
		d.MaxVehicleWidth,
		d.MaxVehicleHeight,
		d.HasEVCharging,
		d.IsCovered,
		d.HasSecurityCamera,
		d.AccessInstructions,
		d.ListingStatus,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update driveway: %w", notFound(err))
	}
	return nil
}

// Deactivate 软删除，车位下架但保留历史预订
func (r *DrivewayRepository) Deactivate(ctx context.Context, id, hostID int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE driveways SET listing_status = 'inactive', updated_at = NOW() WHERE id = $1 AND host_id = $2`,
		id, hostID)
	if err != nil {
		return fmt.Errorf("deactivate driveway: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
