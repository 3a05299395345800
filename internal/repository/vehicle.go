package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/drivewayhub/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, user_id, make, model, year, color, license_plate, length, width, height,
	vin, tesla_id, tesla_vehicle_id, display_name, battery_level, latitude, longitude, created_at, updated_at`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.Make,
		&v.Model,
		&v.Year,
		&v.Color,
		&v.LicensePlate,
		&v.Length,
		&v.Width,
		&v.Height,
		&v.VIN,
		&v.TeslaID,
		&v.TeslaVehicleID,
		&v.DisplayName,
		&v.BatteryLevel,
		&v.Latitude,
		&v.Longitude,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// Create 创建车辆
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (user_id, make, model, year, color, license_plate, length, width, height, vin, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		v.UserID,
		v.Make,
		v.Model,
		v.Year,
		v.Color,
		v.LicensePlate,
		v.Length,
		v.Width,
		v.Height,
		v.VIN,
		v.DisplayName,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, err := scanVehicle(r.db.Pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

// ListByUser 获取用户的车辆
func (r *VehicleRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// UpsertTesla 按 Tesla 车辆 ID 插入或更新
func (r *VehicleRepository) UpsertTesla(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (user_id, make, model, year, color, length, width, height, vin, tesla_id, tesla_vehicle_id, display_name)
		VALUES ($1, 'Tesla', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tesla_vehicle_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			vin = EXCLUDED.vin,
			tesla_id = EXCLUDED.tesla_id,
			display_name = EXCLUDED.display_name,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		v.UserID,
		v.Model,
		v.Year,
		v.Color,
		v.Length,
		v.Width,
		v.Height,
		v.VIN,
		v.TeslaID,
		v.TeslaVehicleID,
		v.DisplayName,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}
	v.Make = "Tesla"
	return nil
}

// UpdateTelemetry 更新电量和位置
func (r *VehicleRepository) UpdateTelemetry(ctx context.Context, id int64, battery *int, lat, lng *float64) error {
	query := `
		UPDATE vehicles SET
			battery_level = COALESCE($2, battery_level),
			latitude = COALESCE($3, latitude),
			longitude = COALESCE($4, longitude),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Pool.Exec(ctx, query, id, battery, lat, lng); err != nil {
		return fmt.Errorf("update vehicle telemetry: %w", err)
	}
	return nil
}
