// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/repository"
	"tani-assist-go/pkg/hash"
	"tani-assist-go/pkg/log"
	"tani-assist-go/pkg/token"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("用户名已存在")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// RegisterInput 注册时提交的资料。
type RegisterInput struct {
	Username    string
	Password    string
	Name        string
	Location    string
	FarmingType string
}

// ProfileUpdate 可修改的画像字段，空字符串表示保持不变。
type ProfileUpdate struct {
	Name        string
	Location    string
	FarmingType string
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(input RegisterInput) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	GetProfile(userID uint) (*model.User, error)
	UpdateProfile(userID uint, update ProfileUpdate) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo    repository.UserRepository
	usageRepo   repository.UsageRepository
	sessionRepo repository.SessionRepository
	jwtManager  *token.JWTManager
	redisClient *redis.Client
	loc         *time.Location
	now         func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, usageRepo repository.UsageRepository, sessionRepo repository.SessionRepository, jwtManager *token.JWTManager, redisClient *redis.Client, loc *time.Location) UserService {
	return &userService{
		userRepo:    userRepo,
		usageRepo:   usageRepo,
		sessionRepo: sessionRepo,
		jwtManager:  jwtManager,
		redisClient: redisClient,
		loc:         loc,
		now:         time.Now,
	}
}

func blacklistKey(tokenString string) string {
	return "blacklist:" + tokenString
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(input RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(input.Username)
	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	newUser := &model.User{
		Username:    username,
		Password:    hashedPassword,
		Name:        input.Name,
		Location:    input.Location,
		FarmingType: input.FarmingType,
		LastActive:  now,
	}
	if newUser.Name == "" {
		newUser.Name = username
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	// 3. 初始化当日用量记录
	if _, _, err := s.usageRepo.Rollover(newUser.UserID, dayKey(now, s.loc)); err != nil {
		log.Errorf("[UserService] 初始化用量记录失败, username: %s, error: %v", username, err)
		return nil, fmt.Errorf("初始化用量记录失败: %w", err)
	}
	log.Infof("[UserService] 新用户注册成功, userID: %d, username: %s", newUser.UserID, username)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	accessToken, err = s.jwtManager.GenerateToken(user.UserID, user.Username)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.UserID, user.Username)
	if err != nil {
		return "", "", err
	}
	if err := s.userRepo.TouchLastActive(user.UserID, s.now()); err != nil {
		log.Warnf("[UserService] 更新 last_active 失败, userID: %d, error: %v", user.UserID, err)
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(userID uint) (*model.User, error) {
	return s.userRepo.FindByID(userID)
}

// UpdateProfile 更新农户画像（姓名、地区、种植类型）。
func (s *userService) UpdateProfile(userID uint, update ProfileUpdate) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(update.Name); v != "" {
		user.Name = v
	}
	if v := strings.TrimSpace(update.Location); v != "" {
		user.Location = v
	}
	if v := strings.TrimSpace(update.FarmingType); v != "" {
		user.FarmingType = v
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单并清空会话上下文。
// 今日用量保存在数据库中，不受影响。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.revoke(ctx, tokenString, claims); err != nil {
		return err
	}
	if s.sessionRepo != nil {
		if err := s.sessionRepo.Delete(ctx, claims.UserID); err != nil {
			log.Warnw("登出时清空会话失败", "userID", claims.UserID, "error", err)
		}
	}
	return nil
}

// revoke 以 token 的剩余有效期作为黑名单 key 的过期时间。
func (s *userService) revoke(ctx context.Context, tokenString string, claims *token.CustomClaims) error {
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	return s.redisClient.Set(ctx, blacklistKey(tokenString), "true", expiration).Err()
}

// IsTokenRevoked 检查 token 是否已被登出。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token，旧的 refresh token 随即作废。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyTyped(refreshTokenString, token.TypeRefresh)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	revoked, err := s.IsTokenRevoked(ctx, refreshTokenString)
	if err != nil {
		return "", "", err
	}
	if revoked {
		return "", "", ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	newAccessToken, err = s.jwtManager.GenerateToken(user.UserID, user.Username)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.UserID, user.Username)
	if err != nil {
		return "", "", err
	}
	if err := s.revoke(ctx, refreshTokenString, claims); err != nil {
		log.Warnf("[UserService] 旧 refresh token 作废失败: %v", err)
	}
	return newAccessToken, newRefreshToken, nil
}
