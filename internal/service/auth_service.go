package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-demo/meet/internal/model"
	apperrors "github.com/go-demo/meet/internal/pkg/errors"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService struct {
	userRepo   *repository.UserRepository
	jwtManager *utils.JWTManager
	logger     *zap.Logger
}

func NewAuthService(userRepo *repository.UserRepository, jwtManager *utils.JWTManager, logger *zap.Logger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// RegisterInput represents registration input
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// AuthResult carries the authenticated user and their tokens
type AuthResult struct {
	User      *model.User
	TokenPair *utils.TokenPair
}

// Register registers a new user
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*AuthResult, error) {
	exists, err := s.userRepo.ExistsByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		s.logger.Error("Failed to check user existence", zap.Error(err))
		return nil, apperrors.ErrInternal
	}
	if exists {
		return nil, apperrors.ErrUsernameExists
	}

	passwordHash, err := utils.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	displayName := input.DisplayName
	if displayName == "" {
		displayName = input.Username
	}
	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  sql.NullString{String: displayName, Valid: true},
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
	)

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// LoginInput represents login input
type LoginInput struct {
	Username string
	Password string
}

// Login authenticates a user by username and password
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		if apperrors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidPassword
		}
		s.logger.Error("Failed to get user", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	if !utils.CheckPassword(input.Password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidPassword
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID))

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// RefreshToken exchanges a valid refresh token for a new token pair
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		if apperrors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(claims.UserID, claims.Username)
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	return tokenPair, nil
}

// GuestResult carries a short-lived guest identity
type GuestResult struct {
	UserID    string
	Nickname  string
	Token     string
	ExpiresAt time.Time
}

// GuestToken issues an identity for a nickname-only participant. Guests
// can join rooms by code but own no catalog rows.
func (s *AuthService) GuestToken(ctx context.Context, nickname string) (*GuestResult, error) {
	userID := "guest:" + uuid.New().String()

	token, expiresAt, err := s.jwtManager.GenerateGuestToken(userID, nickname)
	if err != nil {
		s.logger.Error("Failed to generate guest token", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("Guest token issued",
		zap.String("user_id", userID),
		zap.String("nickname", nickname),
	)

	return &GuestResult{
		UserID:    userID,
		Nickname:  nickname,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
