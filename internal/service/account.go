package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/auth"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/repository"
)

// MinPasswordLength 密码最短长度
const MinPasswordLength = 8

// UserStore 用户存储
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// RegisterInput 注册参数
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      string
}

// Session 登录结果
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AccountService 注册与登录
type AccountService struct {
	logger   *zap.Logger
	users    UserStore
	issuer   *auth.TokenIssuer
	demoMode bool
}

// NewAccountService 创建账号服务；demoMode 下登录只需要邮箱
func NewAccountService(logger *zap.Logger, users UserStore, issuer *auth.TokenIssuer, demoMode bool) *AccountService {
	return &AccountService{logger: logger, users: users, issuer: issuer, demoMode: demoMode}
}

// Register 注册新用户
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	role := in.Role
	switch role {
	case "":
		role = models.RoleDriver
	case models.RoleDriver, models.RoleHost, models.RoleBoth:
	default:
		return nil, apperr.Validation("", "Role must be driver, host or both")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.Validation("", "Password must be at least 8 characters")
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Email:        strings.TrimSpace(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         role,
		PasswordHash: hashed,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict(apperr.CodeDuplicate, "Email is already registered")
		}
		return nil, err
	}

	s.logger.Info("User registered", zap.Int64("user_id", u.ID), zap.String("role", u.Role))
	return s.session(u)
}

// Login 邮箱密码登录；演示模式下任意邮箱都可登录，不存在则创建
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound) && s.demoMode:
		u = &models.User{Email: email, FirstName: demoFirstName(email), Role: models.RoleBoth}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, err
		}
		s.logger.Info("Demo user created", zap.Int64("user_id", u.ID))
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Unauthorized("Invalid email or password")
	default:
		return nil, err
	}

	if !s.demoMode {
		if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
			return nil, apperr.Unauthorized("Invalid email or password")
		}
	}

	return s.session(u)
}

// Me 当前用户
func (s *AccountService) Me(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	return u, nil
}

func (s *AccountService) session(u *models.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func demoFirstName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
