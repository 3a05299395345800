package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/drivewayhub/internal/api/tesla"
	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/repository"
)

const (
	// AuthStateTTL state 与 code_verifier 的有效期
	AuthStateTTL = 10 * time.Minute

	syncConcurrency = 4
)

// ErrReauthRequired 未绑定或令牌无法刷新，需要重新授权
var ErrReauthRequired = errors.New("tesla re-authorization required")

// TeslaAuthorizer OAuth 操作
type TeslaAuthorizer interface {
	GenerateAuthURL(userID int64) (*tesla.AuthRequest, error)
	ParseState(state string, maxAge time.Duration) (int64, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*tesla.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*tesla.Token, error)
}

// TeslaFleet Fleet API
type TeslaFleet interface {
	ListVehicles(ctx context.Context, accessToken string) ([]tesla.Vehicle, error)
	GetVehicle(ctx context.Context, accessToken string, id int64) (*tesla.Vehicle, error)
	GetVehicleData(ctx context.Context, accessToken string, id int64) (*tesla.VehicleData, error)
	WakeUp(ctx context.Context, accessToken string, id int64) (*tesla.Vehicle, error)
	SendCommand(ctx context.Context, accessToken string, id int64, command string, params map[string]any) (*tesla.CommandResult, error)
	ShareNavigation(ctx context.Context, accessToken string, id int64, address string, lat, lng float64) (*tesla.CommandResult, error)
}

// TokenStore Tesla 令牌持久化
type TokenStore interface {
	Get(ctx context.Context, userID int64) (*models.TeslaToken, error)
	Save(ctx context.Context, t *models.TeslaToken) error
	Delete(ctx context.Context, userID int64) error
}

// VerifierStore PKCE 暂存
type VerifierStore interface {
	Save(ctx context.Context, st repository.PKCEState, ttl time.Duration) error
	Get(ctx context.Context, userID int64) (*repository.PKCEState, error)
	Delete(ctx context.Context, userID int64) error
}

// TeslaVehicleStore 同步车辆时使用的车辆存储
type TeslaVehicleStore interface {
	UpsertTesla(ctx context.Context, v *models.Vehicle) error
	UpdateTelemetry(ctx context.Context, id int64, battery *int, lat, lng *float64) error
}

// TeslaService Tesla 账号绑定、令牌生命周期与车辆操作
type TeslaService struct {
	logger    *zap.Logger
	auth      TeslaAuthorizer
	fleet     TeslaFleet
	tokens    TokenStore
	verifiers VerifierStore
	vehicles  TeslaVehicleStore
	now       func() time.Time

	refreshes singleflight.Group
}

// NewTeslaService 创建 Tesla 服务
func NewTeslaService(
	logger *zap.Logger,
	auth TeslaAuthorizer,
	fleet TeslaFleet,
	tokens TokenStore,
	verifiers VerifierStore,
	vehicles TeslaVehicleStore,
) *TeslaService {
	return &TeslaService{
		logger:    logger,
		auth:      auth,
		fleet:     fleet,
		tokens:    tokens,
		verifiers: verifiers,
		vehicles:  vehicles,
		now:       time.Now,
	}
}

// StartAuthorization 生成授权地址，并暂存 state 与 code_verifier
func (s *TeslaService) StartAuthorization(ctx context.Context, userID int64) (*tesla.AuthRequest, error) {
	req, err := s.auth.GenerateAuthURL(userID)
	if err != nil {
		return nil, fmt.Errorf("generate auth url: %w", err)
	}

	st := repository.PKCEState{
		UserID:       userID,
		State:        req.State,
		CodeVerifier: req.CodeVerifier,
		CreatedAt:    s.now(),
	}
	if err := s.verifiers.Save(ctx, st, AuthStateTTL); err != nil {
		return nil, err
	}

	s.logger.Info("Tesla authorization started", zap.Int64("user_id", userID))
	return req, nil
}

// CompleteAuthorization 校验 state、换取令牌并同步车辆
func (s *TeslaService) CompleteAuthorization(ctx context.Context, userID int64, code, state string) ([]*models.Vehicle, error) {
	if code == "" || state == "" {
		return nil, apperr.Validation("", "Authorization code and state are required")
	}

	stateUser, err := s.auth.ParseState(state, AuthStateTTL)
	if err != nil {
		return nil, apperr.Validation("", "Invalid or expired authorization state").WithDetails(map[string]any{"reason": err.Error()})
	}
	if stateUser != userID {
		return nil, apperr.Forbidden("Authorization state does not belong to this user")
	}

	pending, err := s.verifiers.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.State != state {
		return nil, apperr.Validation("", "Authorization session not found or already used")
	}

	tok, err := s.auth.ExchangeCode(ctx, code, pending.CodeVerifier)
	if err != nil {
		return nil, teslaError(err)
	}

	// 授权码只能使用一次
	if err := s.verifiers.Delete(ctx, userID); err != nil {
		s.logger.Warn("Failed to delete pkce state", zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.saveToken(ctx, userID, tok); err != nil {
		return nil, err
	}
	s.logger.Info("Tesla account connected", zap.Int64("user_id", userID))

	vehicles, err := s.syncWithToken(ctx, userID, tok.AccessToken)
	if err != nil {
		// 绑定已成功，同步失败只记录
		s.logger.Warn("Initial vehicle sync failed", zap.Int64("user_id", userID), zap.Error(err))
		return []*models.Vehicle{}, nil
	}
	return vehicles, nil
}

// Disconnect 解除绑定，删除令牌和未完成的授权
func (s *TeslaService) Disconnect(ctx context.Context, userID int64) error {
	// 等待进行中的刷新结束，避免刷新结果在删除后写回
	_, _, _ = s.refreshes.Do(refreshKey(userID), func() (any, error) { return "", nil })

	if err := s.tokens.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.verifiers.Delete(ctx, userID); err != nil {
		s.logger.Warn("Failed to delete pkce state", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.logger.Info("Tesla account disconnected", zap.Int64("user_id", userID))
	return nil
}

// GetValidAccessToken 未过期直接返回；过期且有 refresh_token 时刷新，
// 同一用户的并发刷新只发起一次请求
func (s *TeslaService) GetValidAccessToken(ctx context.Context, userID int64) (string, error) {
	stored, err := s.loadToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if !stored.Expired(s.now()) {
		return stored.AccessToken, nil
	}

	v, err, _ := s.refreshes.Do(refreshKey(userID), func() (any, error) {
		// 共享的刷新不受单个调用方取消影响
		return s.refresh(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *TeslaService) loadToken(ctx context.Context, userID int64) (*models.TeslaToken, error) {
	stored, err := s.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReauthRequired
		}
		return nil, err
	}
	return stored, nil
}

func (s *TeslaService) refresh(ctx context.Context, userID int64) (string, error) {
	// 上一轮刷新可能刚刚写入新令牌
	stored, err := s.loadToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if !stored.Expired(s.now()) {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		return "", ErrReauthRequired
	}

	tok, err := s.auth.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		var pe *tesla.ProviderError
		if errors.As(err, &pe) && (pe.Status == http.StatusBadRequest || pe.Status == http.StatusUnauthorized) {
			s.logger.Warn("Tesla refresh token rejected", zap.Int64("user_id", userID), zap.Int("status", pe.Status))
			return "", ErrReauthRequired
		}
		return "", fmt.Errorf("refresh tesla token: %w", err)
	}

	if err := s.saveToken(ctx, userID, tok); err != nil {
		return "", err
	}
	s.logger.Info("Tesla token refreshed", zap.Int64("user_id", userID), zap.Time("expires_at", tok.ExpiresAt()))
	return tok.AccessToken, nil
}

func refreshKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *TeslaService) saveToken(ctx context.Context, userID int64, tok *tesla.Token) error {
	createdAt := tok.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	return s.tokens.Save(ctx, &models.TeslaToken{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    createdAt.Add(time.Duration(tok.ExpiresIn) * time.Second),
	})
}

// SyncVehicles 从 Tesla 拉取车辆并写入数据库
func (s *TeslaService) SyncVehicles(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, teslaError(err)
	}
	vehicles, err := s.syncWithToken(ctx, userID, token)
	if err != nil {
		return nil, teslaError(err)
	}
	return vehicles, nil
}

func (s *TeslaService) syncWithToken(ctx context.Context, userID int64, token string) ([]*models.Vehicle, error) {
	remote, err := s.fleet.ListVehicles(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list vehicles from tesla: %w", err)
	}

	synced := make([]*models.Vehicle, len(remote))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for i := range remote {
		i, rv := i, remote[i]
		g.Go(func() error {
			v := vehicleFromTesla(userID, rv)
			if err := s.vehicles.UpsertTesla(gctx, v); err != nil {
				return fmt.Errorf("upsert vehicle %d: %w", rv.ID, err)
			}

			// 只读取在线车辆的遥测，不唤醒
			if rv.State == "online" {
				s.refreshTelemetry(gctx, token, v)
			}

			synced[i] = v
			s.logger.Info("Synced vehicle",
				zap.Int64("user_id", userID),
				zap.String("name", v.DisplayName),
				zap.String("model", v.Model),
				zap.Int("year", v.Year),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return synced, nil
}

func (s *TeslaService) refreshTelemetry(ctx context.Context, token string, v *models.Vehicle) {
	data, err := s.fleet.GetVehicleData(ctx, token, *v.TeslaID)
	if err != nil {
		s.logger.Debug("Skip telemetry", zap.Int64("vehicle_id", v.ID), zap.Error(err))
		return
	}

	var battery *int
	if data.ChargeState != nil {
		level := data.ChargeState.BatteryLevel
		battery = &level
	}
	var lat, lng *float64
	if la, ln, ok := data.Location(); ok {
		lat, lng = &la, &ln
	}

	if err := s.vehicles.UpdateTelemetry(ctx, v.ID, battery, lat, lng); err != nil {
		s.logger.Warn("Failed to update telemetry", zap.Int64("vehicle_id", v.ID), zap.Error(err))
		return
	}
	v.BatteryLevel, v.Latitude, v.Longitude = battery, lat, lng
}

func vehicleFromTesla(userID int64, rv tesla.Vehicle) *models.Vehicle {
	model, year := tesla.DecodeVIN(rv.VIN)
	length, width, height := tesla.Dimensions(model)

	teslaID, teslaVehicleID := rv.ID, rv.VehicleID
	v := &models.Vehicle{
		UserID:         userID,
		Make:           "Tesla",
		Model:          model,
		Year:           year,
		Color:          rv.Color,
		Length:         length,
		Width:          width,
		Height:         &height,
		TeslaID:        &teslaID,
		TeslaVehicleID: &teslaVehicleID,
		DisplayName:    rv.DisplayName,
	}
	if rv.VIN != "" {
		vin := rv.VIN
		v.VIN = &vin
	}
	return v
}

// ListVehicles 代理 Fleet API 车辆列表
func (s *TeslaService) ListVehicles(ctx context.Context, userID int64) ([]tesla.Vehicle, error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, teslaError(err)
	}
	vehicles, err := s.fleet.ListVehicles(ctx, token)
	if err != nil {
		return nil, teslaError(err)
	}
	if vehicles == nil {
		vehicles = []tesla.Vehicle{}
	}
	return vehicles, nil
}

// VehicleData 代理车辆完整数据
func (s *TeslaService) VehicleData(ctx context.Context, userID, teslaID int64) (*tesla.VehicleData, error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, teslaError(err)
	}
	data, err := s.fleet.GetVehicleData(ctx, token, teslaID)
	if err != nil {
		return nil, teslaError(err)
	}
	return data, nil
}

// WakeUp 唤醒车辆
func (s *TeslaService) WakeUp(ctx context.Context, userID, teslaID int64) (*tesla.Vehicle, error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, teslaError(err)
	}
	v, err := s.fleet.WakeUp(ctx, token, teslaID)
	if err != nil {
		return nil, teslaError(err)
	}
	return v, nil
}

// SendCommand 发送车辆指令
func (s *TeslaService) SendCommand(ctx context.Context, userID, teslaID int64, command string, params map[string]any) (*tesla.CommandResult, error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, teslaError(err)
	}
	res, err := s.fleet.SendCommand(ctx, token, teslaID, command, params)
	if err != nil {
		return res, teslaError(err)
	}
	s.logger.Info("Tesla command sent", zap.Int64("user_id", userID), zap.Int64("tesla_id", teslaID), zap.String("command", command))
	return res, nil
}

// ShareNavigation 推送导航目的地，供调度任务使用，返回原始错误
func (s *TeslaService) ShareNavigation(ctx context.Context, nav models.NavigationPayload) error {
	token, err := s.GetValidAccessToken(ctx, nav.UserID)
	if err != nil {
		return err
	}
	_, err = s.fleet.ShareNavigation(ctx, token, nav.TeslaID, nav.Address, nav.Latitude, nav.Longitude)
	return err
}

// VehicleLocation 车辆当前位置，供到达检测使用
// 先查车辆状态，休眠或离线时不请求 vehicle_data，避免轮询唤醒车辆
func (s *TeslaService) VehicleLocation(ctx context.Context, userID, teslaID int64) (lat, lng float64, err error) {
	token, err := s.GetValidAccessToken(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	vehicle, err := s.fleet.GetVehicle(ctx, token, teslaID)
	if err != nil {
		return 0, 0, err
	}
	if vehicle.State != "online" {
		return 0, 0, tesla.ErrVehicleUnavailable
	}
	data, err := s.fleet.GetVehicleData(ctx, token, teslaID)
	if err != nil {
		return 0, 0, err
	}
	lat, lng, ok := data.Location()
	if !ok {
		return 0, 0, tesla.ErrVehicleUnavailable
	}
	return lat, lng, nil
}

// teslaError 把 Tesla 相关错误转为应用错误
func teslaError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrReauthRequired), errors.Is(err, tesla.ErrUnauthorized):
		return apperr.Business(apperr.CodeTeslaNotConnected, "Tesla account is not connected or the authorization has expired")
	case errors.Is(err, tesla.ErrVehicleUnavailable):
		return &apperr.Error{Status: http.StatusServiceUnavailable, Code: apperr.CodeTeslaError, Message: "Vehicle is asleep or offline", Err: err}
	case errors.Is(err, tesla.ErrRateLimited):
		return &apperr.Error{Status: http.StatusTooManyRequests, Code: apperr.CodeRateLimited, Message: "Tesla API rate limit reached", Err: err}
	}
	return apperr.Upstream(apperr.CodeTeslaError, "Tesla API request failed", err)
}
