package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/finaudit/audit-engine/internal/auth"
	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrAccountInactive    = errors.New("account is inactive")
)

// AuthService handles authentication operations
type AuthService struct {
	userRepo   *repositories.UserRepository
	jwtManager *auth.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo *repositories.UserRepository, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email          string     `json:"email" binding:"required,email"`
	Password       string     `json:"password" binding:"required,min=8"`
	FullName       string     `json:"full_name" binding:"required"`
	Phone          string     `json:"phone"`
	Role           string     `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// UserResponse represents a user in responses
type UserResponse struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

// Register registers a new user
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if !auth.ValidatePasswordStrength(req.Password) {
		return nil, ErrWeakPassword
	}

	exists, err := s.userRepo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, repositories.ErrUserAlreadyExists
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleClient
	}

	profile := &models.Profile{
		Email:          req.Email,
		FullName:       req.FullName,
		PasswordHash:   hashedPassword,
		Phone:          req.Phone,
		Role:           role,
		Status:         models.ProfileStatusActive,
		OrganizationID: req.OrganizationID,
	}

	if err := s.userRepo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return s.buildAuthResponse(profile)
}

// Login authenticates a user
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	profile, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !auth.CheckPassword(req.Password, profile.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if profile.Status != models.ProfileStatusActive {
		return nil, ErrAccountInactive
	}

	return s.buildAuthResponse(profile)
}

// RefreshToken issues a fresh token for a still-valid session
func (s *AuthService) RefreshToken(ctx context.Context, currentToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(currentToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	if profile.Status != models.ProfileStatusActive {
		return nil, ErrAccountInactive
	}

	return s.buildAuthResponse(profile)
}

// GetUser retrieves a user by ID
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	profile, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(profile)
	return &resp, nil
}

func (s *AuthService) buildAuthResponse(profile *models.Profile) (*AuthResponse, error) {
	token, err := s.jwtManager.GenerateToken(profile.ID, profile.Email, profile.Role, profile.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: 86400, // 24 hours in seconds
		User:      toUserResponse(profile),
	}, nil
}

func toUserResponse(profile *models.Profile) UserResponse {
	return UserResponse{
		ID:             profile.ID,
		Email:          profile.Email,
		FullName:       profile.FullName,
		Role:           profile.Role,
		Status:         profile.Status,
		OrganizationID: profile.OrganizationID,
		CreatedAt:      profile.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
