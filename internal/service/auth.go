package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	minLoginIDLength  = 3
	minPasswordLength = 8
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMisconfigured = errors.New("auth config invalid")
)

type userRepo interface {
	CreateUser(ctx context.Context, loginID, passwordHash string) (*model.User, error)
	GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error)
}

// AuthService - 운영자 로그인 (bcrypt + JWT), 선택적으로 공장 SSO(OIDC) ID 토큰 검증
type AuthService struct {
	repo      userRepo
	jwtSecret []byte
	accessTTL time.Duration
	verifier  *oidc.IDTokenVerifier
}

type authClaims struct {
	LoginID string `json:"loginId"`
	jwt.RegisteredClaims
}

func NewAuthService(ctx context.Context, repo userRepo, cfg config.AuthConfig) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	accessTTL, err := time.ParseDuration(cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	svc := &AuthService{
		repo:      repo,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: accessTTL,
	}

	if cfg.OIDCIssuer != "" {
		if cfg.OIDCClientID == "" {
			return nil, fmt.Errorf("%w: OIDC_CLIENT_ID is required with OIDC_ISSUER", ErrMisconfigured)
		}
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
		}
		svc.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	}
	return svc, nil
}

func (s *AuthService) EnsureAdmin(ctx context.Context, loginID, password string) error {
	if strings.TrimSpace(loginID) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: ADMIN_USERNAME/ADMIN_PASSWORD are required", ErrMisconfigured)
	}

	_, err := s.repo.GetUserByLoginID(ctx, loginID)
	if err == nil {
		return nil
	}
	if !db.IsNoRows(err) {
		return err
	}

	if err := validateCredentials(loginID, password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.repo.CreateUser(ctx, loginID, string(hash))
	return err
}

func (s *AuthService) Login(ctx context.Context, loginID, password string) (string, int64, error) {
	if err := validateCredentials(loginID, password); err != nil {
		return "", 0, err
	}

	user, err := s.repo.GetUserByLoginID(ctx, loginID)
	if err != nil {
		if db.IsNoRows(err) {
			return "", 0, ErrUnauthorized
		}
		return "", 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", 0, ErrUnauthorized
	}

	return s.generateAccessToken(user)
}

// ParseAccessToken - 자체 발급 JWT 검증, 실패 시 OIDC ID 토큰으로 재시도
func (s *AuthService) ParseAccessToken(ctx context.Context, tokenStr string) (*model.AuthUser, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err == nil && token.Valid {
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, ErrUnauthorized
		}
		return &model.AuthUser{ID: userID, LoginID: claims.LoginID}, nil
	}

	if s.verifier == nil {
		return nil, ErrUnauthorized
	}
	idToken, err := s.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}
	var sso struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	_ = idToken.Claims(&sso)
	loginID := sso.PreferredUsername
	if loginID == "" {
		loginID = sso.Email
	}
	if loginID == "" {
		loginID = idToken.Subject
	}
	return &model.AuthUser{LoginID: loginID}, nil
}

func (s *AuthService) generateAccessToken(user *model.User) (string, int64, error) {
	now := time.Now()
	claims := authClaims{
		LoginID: user.LoginID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.accessTTL.Seconds()), nil
}

func validateCredentials(loginID, password string) error {
	loginID = strings.TrimSpace(loginID)
	password = strings.TrimSpace(password)

	if len(loginID) < minLoginIDLength || len(loginID) > 64 {
		return ErrInvalidInput
	}
	if len(password) < minPasswordLength || len(password) > 128 {
		return ErrInvalidInput
	}
	return nil
}
