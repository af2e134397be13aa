package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenIssuer   = "quill-api"
	TokenAudience = "quill-client"

	blacklistPrefix = "blacklist:"
)

// AuthService registers users and issues, checks and revokes their tokens.
type AuthService struct {
	store      repository.Datastore
	redis      *redis.Client
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// IssuedToken is a signed access token.
type IssuedToken struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenClaims are the claims quill reads back from a token.
type TokenClaims struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// NewAuthService returns an AuthService signing HS256 tokens with secret.
// Without a Redis client tokens cannot be revoked.
func NewAuthService(store repository.Datastore, rdb *redis.Client, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		store:      store,
		redis:      rdb,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Register creates a user with the default role and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, *IssuedToken, error) {
	if err := validationErr(validateUserName(in.Name)); err != nil {
		return nil, nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validationErr(validation.ValidateEmail(email)); err != nil {
		return nil, nil, err
	}
	if err := validationErr(validation.ValidatePassword(in.Password, in.PasswordConfirmation)); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}
	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: string(hashedPassword),
		Role:     models.RoleUser,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, nil, err
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

// Identify checks credentials. Unknown emails and wrong passwords are the
// same Unauthenticated error.
func (s *AuthService) Identify(ctx context.Context, email, password string) (*models.User, error) {
	invalid := models.NewUnauthenticatedError("Invalid credentials")
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return nil, invalid
	}
	return user, nil
}

// IssueToken signs a new access token for user.
func (s *AuthService) IssueToken(user *models.User) (*IssuedToken, error) {
	if len(s.secret) == 0 {
		return nil, models.NewInternalError(fmt.Errorf("JWT secret not configured"))
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": string(user.Role),
		"iss":  TokenIssuer,
		"aud":  TokenAudience,
		"exp":  expiresAt.Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &IssuedToken{
		Token:     signed,
		Type:      "bearer",
		ExpiresIn: int64(s.ttl / time.Second),
		ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC(),
	}, nil
}

// ParseToken verifies signature, issuer, audience and lifetime of raw.
// Revocation is not checked here.
func (s *AuthService) ParseToken(raw string) (*TokenClaims, error) {
	token, err := jwt.Parse(raw, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthenticatedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthenticatedError("Invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, models.NewUnauthenticatedError("Invalid subject claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return nil, models.NewUnauthenticatedError("Invalid user ID in token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, models.NewUnauthenticatedError("Invalid expiration claim")
	}
	jti, _ := claims["jti"].(string)

	return &TokenClaims{UserID: uint(userID), JTI: jti, ExpiresAt: exp.Time}, nil
}

// CurrentActor resolves the user behind raw. An empty token is an anonymous
// caller (nil, nil); an invalid, revoked or orphaned token is Unauthenticated.
func (s *AuthService) CurrentActor(ctx context.Context, raw string) (*models.User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	claims, err := s.ParseToken(raw)
	if err != nil {
		return nil, err
	}
	if s.isRevoked(ctx, claims.JTI) {
		return nil, models.NewUnauthenticatedError("Token has been revoked")
	}

	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthenticatedError("User no longer exists")
		}
		return nil, err
	}
	return user, nil
}

// Logout revokes raw until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

// Refresh exchanges a valid token for a new one and revokes the old token.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*models.User, *IssuedToken, error) {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.CurrentActor(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

func (s *AuthService) revoke(ctx context.Context, claims *TokenClaims) error {
	if claims.JTI == "" {
		return models.NewUnauthenticatedError("Token cannot be revoked")
	}
	if s.redis == nil {
		slog.WarnContext(ctx, "token revocation skipped: redis is not configured", "jti", claims.JTI)
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistPrefix+claims.JTI, "1", ttl).Err(); err != nil {
		return models.NewInternalError(fmt.Errorf("revoke token: %w", err))
	}
	return nil
}

// isRevoked fails open when Redis is unavailable.
func (s *AuthService) isRevoked(ctx context.Context, jti string) bool {
	if s.redis == nil || jti == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "token revocation check failed", "err", err)
		}
		return false
	}
	return n > 0
}

func validateUserName(name string) error {
	return validation.ValidateName("name", name)
}
