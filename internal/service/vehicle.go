package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/models"
)

// VehicleStore 车辆存储
type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) error
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error)
}

// VehicleService 车主手动登记的车辆与 Tesla 同步来的车辆
type VehicleService struct {
	logger   *zap.Logger
	vehicles VehicleStore
}

// NewVehicleService 创建车辆服务
func NewVehicleService(logger *zap.Logger, vehicles VehicleStore) *VehicleService {
	return &VehicleService{logger: logger, vehicles: vehicles}
}

// List 用户名下车辆
func (s *VehicleService) List(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	result, err := s.vehicles.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*models.Vehicle{}
	}
	return result, nil
}

// Get 车辆详情，只允许车主查看
func (s *VehicleService) Get(ctx context.Context, userID, id int64) (*models.Vehicle, error) {
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Vehicle not found")
	}
	if v.UserID != userID {
		return nil, apperr.NotFound("Vehicle not found")
	}
	return v, nil
}

// Create 手动登记车辆
func (s *VehicleService) Create(ctx context.Context, userID int64, v *models.Vehicle) (*models.Vehicle, error) {
	v.Make = strings.TrimSpace(v.Make)
	v.Model = strings.TrimSpace(v.Model)
	if v.Make == "" || v.Model == "" {
		return nil, apperr.Validation("", "Make and model are required")
	}
	if v.Length <= 0 || v.Width <= 0 {
		return nil, apperr.Validation("", "Vehicle length and width must be positive")
	}
	if v.Height != nil && *v.Height <= 0 {
		return nil, apperr.Validation("", "Vehicle height must be positive")
	}

	v.UserID = userID
	v.TeslaID = nil
	v.TeslaVehicleID = nil
	if err := s.vehicles.Create(ctx, v); err != nil {
		if appErr := apperr.FromDatabase(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	s.logger.Info("Vehicle added", zap.Int64("vehicle_id", v.ID), zap.Int64("user_id", userID), zap.String("vehicle", v.Label()))
	return v, nil
}
