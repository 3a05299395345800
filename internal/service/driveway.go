package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/api/geocoder"
	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/repository"
)

// DrivewayStore 车位存储
type DrivewayStore interface {
	Create(ctx context.Context, d *models.Driveway) error
	GetByID(ctx context.Context, id int64) (*models.Driveway, error)
	ListByHost(ctx context.Context, hostID int64) ([]*models.Driveway, error)
	SearchAvailable(ctx context.Context, p repository.SearchParams) ([]*models.Driveway, error)
	ListAvailable(ctx context.Context, limit, offset int) ([]*models.Driveway, error)
	SetAvailability(ctx context.Context, id, hostID int64, available bool) error
	Update(ctx context.Context, d *models.Driveway) error
	Deactivate(ctx context.Context, id, hostID int64) error
}

// DrivewayPatch 车位部分更新，nil 字段保持不变
type DrivewayPatch struct {
	Title              *string
	Description        *string
	Address            *string
	City               *string
	State              *string
	ZipCode            *string
	Latitude           *float64
	Longitude          *float64
	DrivewayType       *string
	HourlyRate         *float64
	DailyRate          *float64
	MaxVehicleLength   *float64
	MaxVehicleWidth    *float64
	MaxVehicleHeight   *float64
	HasEVCharging      *bool
	IsCovered          *bool
	HasSecurityCamera  *bool
	AccessInstructions *string
	ListingStatus      *string
}

// Geocoder 地址解析
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocoder.Location, error)
}

// DrivewayService 车位发布与搜索
type DrivewayService struct {
	logger    *zap.Logger
	driveways DrivewayStore
	users     UserStore
	geocoder  Geocoder
}

// NewDrivewayService 创建车位服务，geocoder 为 nil 时发布车位必须带坐标
func NewDrivewayService(logger *zap.Logger, driveways DrivewayStore, users UserStore, geo Geocoder) *DrivewayService {
	return &DrivewayService{logger: logger, driveways: driveways, users: users, geocoder: geo}
}

// Search 有坐标时按半径搜索，否则列出全部可预订车位
func (s *DrivewayService) Search(ctx context.Context, p *repository.SearchParams) ([]*models.Driveway, error) {
	var (
		result []*models.Driveway
		err    error
	)
	if p != nil {
		result, err = s.driveways.SearchAvailable(ctx, *p)
	} else {
		result, err = s.driveways.ListAvailable(ctx, 100, 0)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*models.Driveway{}
	}
	return result, nil
}

// Get 车位详情
func (s *DrivewayService) Get(ctx context.Context, id int64) (*models.Driveway, error) {
	d, err := s.driveways.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Driveway not found")
	}
	return d, nil
}

// Create 车主发布车位
func (s *DrivewayService) Create(ctx context.Context, hostID int64, d *models.Driveway) (*models.Driveway, error) {
	host, err := s.users.GetByID(ctx, hostID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	if !host.IsHost() {
		return nil, apperr.Forbidden("Only hosts can list driveways")
	}
	if d.HourlyRate <= 0 {
		return nil, apperr.Validation("", "Hourly rate must be positive")
	}
	if d.MaxVehicleLength <= 0 || d.MaxVehicleWidth <= 0 {
		return nil, apperr.Validation("", "Maximum vehicle dimensions must be positive")
	}

	if d.Latitude == 0 && d.Longitude == 0 {
		if err := s.locate(ctx, d); err != nil {
			return nil, err
		}
	}

	d.HostID = hostID
	if d.ListingStatus == "" {
		d.ListingStatus = models.ListingActive
	}
	if d.DrivewayType == "" {
		d.DrivewayType = "driveway"
	}
	if err := s.driveways.Create(ctx, d); err != nil {
		if appErr := apperr.FromDatabase(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	s.logger.Info("Driveway listed", zap.Int64("driveway_id", d.ID), zap.Int64("host_id", hostID))
	return d, nil
}

// ListByHost 车主的车位
func (s *DrivewayService) ListByHost(ctx context.Context, hostID int64) ([]*models.Driveway, error) {
	result, err := s.driveways.ListByHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*models.Driveway{}
	}
	return result, nil
}

// SetAvailability 车主上下架
func (s *DrivewayService) SetAvailability(ctx context.Context, hostID, id int64, available bool) error {
	if err := s.driveways.SetAvailability(ctx, id, hostID, available); err != nil {
		return storeError(err, "Driveway not found")
	}
	s.logger.Info("Driveway availability changed", zap.Int64("driveway_id", id), zap.Bool("available", available))
	return nil
}

// Update 车主修改自己的车位，地址变更且未给坐标时重新解析
func (s *DrivewayService) Update(ctx context.Context, hostID, id int64, p DrivewayPatch) (*models.Driveway, error) {
	d, err := s.driveways.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Driveway not found")
	}
	if d.HostID != hostID {
		return nil, apperr.NotFound("Driveway not found")
	}

	addressChanged := p.Address != nil && *p.Address != d.Address
	applyPatch(d, p)

	if d.HourlyRate <= 0 {
		return nil, apperr.Validation("", "Hourly rate must be positive")
	}
	if d.MaxVehicleLength <= 0 || d.MaxVehicleWidth <= 0 {
		return nil, apperr.Validation("", "Maximum vehicle dimensions must be positive")
	}
	if d.ListingStatus != models.ListingActive && d.ListingStatus != models.ListingInactive {
		return nil, apperr.Validation("", "Listing status must be active or inactive")
	}
	if addressChanged && p.Latitude == nil && p.Longitude == nil {
		if err := s.locate(ctx, d); err != nil {
			return nil, err
		}
	}

	if err := s.driveways.Update(ctx, d); err != nil {
		return nil, storeError(err, "Driveway not found")
	}

	s.logger.Info("Driveway updated", zap.Int64("driveway_id", d.ID), zap.Int64("host_id", hostID))
	return d, nil
}

// Deactivate 车主删除车位（软删除）
func (s *DrivewayService) Deactivate(ctx context.Context, hostID, id int64) error {
	if err := s.driveways.Deactivate(ctx, id, hostID); err != nil {
		return storeError(err, "Driveway not found")
	}
	s.logger.Info("Driveway deactivated", zap.Int64("driveway_id", id), zap.Int64("host_id", hostID))
	return nil
}

func applyPatch(d *models.Driveway, p DrivewayPatch) {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}

	setString(&d.Title, p.Title)
	setString(&d.Description, p.Description)
	setString(&d.Address, p.Address)
	setString(&d.City, p.City)
	setString(&d.State, p.State)
	setString(&d.ZipCode, p.ZipCode)
	setString(&d.DrivewayType, p.DrivewayType)
	setString(&d.AccessInstructions, p.AccessInstructions)
	setString(&d.ListingStatus, p.ListingStatus)
	setFloat(&d.Latitude, p.Latitude)
	setFloat(&d.Longitude, p.Longitude)
	setFloat(&d.HourlyRate, p.HourlyRate)
	setFloat(&d.MaxVehicleLength, p.MaxVehicleLength)
	setFloat(&d.MaxVehicleWidth, p.MaxVehicleWidth)
	setBool(&d.HasEVCharging, p.HasEVCharging)
	setBool(&d.IsCovered, p.IsCovered)
	setBool(&d.HasSecurityCamera, p.HasSecurityCamera)
	if p.DailyRate != nil {
		d.DailyRate = p.DailyRate
	}
	if p.MaxVehicleHeight != nil {
		d.MaxVehicleHeight = p.MaxVehicleHeight
	}
}

// locate 没有坐标时按地址解析，并补齐空的城市/省/邮编
func (s *DrivewayService) locate(ctx context.Context, d *models.Driveway) error {
	if s.geocoder == nil {
		return apperr.Validation("", "Latitude and longitude are required")
	}

	query := strings.Join(nonEmpty(d.Address, d.City, d.State, d.ZipCode), ", ")
	loc, err := s.geocoder.Geocode(ctx, query)
	if errors.Is(err, geocoder.ErrNoResult) {
		return apperr.Validation("", "Could not locate the driveway address")
	}
	if err != nil {
		return &apperr.Error{Status: http.StatusServiceUnavailable, Code: apperr.CodeInternal, Message: "Address lookup is unavailable, provide coordinates", Err: err}
	}

	d.Latitude, d.Longitude = loc.Latitude, loc.Longitude
	if d.City == "" {
		d.City = loc.City
	}
	if d.State == "" {
		d.State = loc.State
	}
	if d.ZipCode == "" {
		d.ZipCode = loc.ZipCode
	}
	return nil
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
