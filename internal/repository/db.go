package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping 健康检查
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// notFound 把 pgx.ErrNoRows 转为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateUsers,
		migrationCreateVehicles,
		migrationCreateDriveways,
		migrationCreateBookings,
		migrationCreateTeslaTokens,
		migrationCreateBookingTasks,
	}

	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	return nil
}

const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    first_name VARCHAR(100) NOT NULL DEFAULT '',
    last_name VARCHAR(100) NOT NULL DEFAULT '',
    phone VARCHAR(32),
    role VARCHAR(16) NOT NULL DEFAULT 'driver' CHECK (role IN ('driver', 'host', 'both')),
    password_hash VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    make VARCHAR(50) NOT NULL DEFAULT 'Tesla',
    model VARCHAR(50) NOT NULL DEFAULT '',
    year INTEGER NOT NULL DEFAULT 0,
    color VARCHAR(50) NOT NULL DEFAULT '',
    license_plate VARCHAR(20) NOT NULL DEFAULT '',
    length DOUBLE PRECISION NOT NULL CHECK (length > 0),
    width DOUBLE PRECISION NOT NULL CHECK (width > 0),
    height DOUBLE PRECISION,
    vin VARCHAR(17) UNIQUE,
    tesla_id BIGINT,
    tesla_vehicle_id BIGINT UNIQUE,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    battery_level INTEGER,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_user_id ON vehicles(user_id);
`

const migrationCreateDriveways = `
CREATE TABLE IF NOT EXISTS driveways (
    id BIGSERIAL PRIMARY KEY,
    host_id BIGINT NOT NULL REFERENCES users(id),
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    address VARCHAR(255) NOT NULL,
    city VARCHAR(100) NOT NULL DEFAULT '',
    state VARCHAR(50) NOT NULL DEFAULT '',
    zip_code VARCHAR(20) NOT NULL DEFAULT '',
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    driveway_type VARCHAR(32) NOT NULL DEFAULT 'driveway',
    hourly_rate NUMERIC(10, 2) NOT NULL CHECK (hourly_rate > 0),
    daily_rate NUMERIC(10, 2),
    max_vehicle_length DOUBLE PRECISION NOT NULL,
    max_vehicle_width DOUBLE PRECISION NOT NULL,
    max_vehicle_height DOUBLE PRECISION,
    is_available BOOLEAN NOT NULL DEFAULT TRUE,
    has_ev_charging BOOLEAN NOT NULL DEFAULT FALSE,
    is_covered BOOLEAN NOT NULL DEFAULT FALSE,
    has_security_camera BOOLEAN NOT NULL DEFAULT FALSE,
    access_instructions TEXT NOT NULL DEFAULT '',
    listing_status VARCHAR(16) NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_driveways_host_id ON driveways(host_id);
CREATE INDEX IF NOT EXISTS idx_driveways_location ON driveways(latitude, longitude);
`

const migrationCreateBookings = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    booking_reference VARCHAR(16) NOT NULL UNIQUE,
    driver_id BIGINT NOT NULL REFERENCES users(id),
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
    driveway_id BIGINT NOT NULL REFERENCES driveways(id),
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ NOT NULL,
    total_hours INTEGER NOT NULL,
    hourly_rate NUMERIC(10, 2) NOT NULL,
    subtotal NUMERIC(10, 2) NOT NULL,
    platform_fee NUMERIC(10, 2) NOT NULL,
    total_amount NUMERIC(10, 2) NOT NULL,
    host_earnings NUMERIC(10, 2) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    driver_notes TEXT,
    navigation_sent BOOLEAN NOT NULL DEFAULT FALSE,
    arrival_detected_at TIMESTAMPTZ,
    departure_detected_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    cancellation_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT bookings_time_range CHECK (end_time > start_time)
);
CREATE INDEX IF NOT EXISTS idx_bookings_driveway_time ON bookings(driveway_id, start_time, end_time);
CREATE INDEX IF NOT EXISTS idx_bookings_driver_id ON bookings(driver_id);
CREATE INDEX IF NOT EXISTS idx_bookings_status_start ON bookings(status, start_time);
`

const migrationCreateTeslaTokens = `
CREATE TABLE IF NOT EXISTS tesla_tokens (
    user_id BIGINT PRIMARY KEY REFERENCES users(id),
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationCreateBookingTasks = `
CREATE TABLE IF NOT EXISTS booking_tasks (
    id BIGSERIAL PRIMARY KEY,
    booking_id BIGINT NOT NULL REFERENCES bookings(id),
    kind VARCHAR(32) NOT NULL,
    payload JSONB NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_booking_tasks_due ON booking_tasks(status, next_attempt_at);
`
