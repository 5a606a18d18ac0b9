package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tempora-hq/tempora/internal/authz"
)

const issuer = "tempora"

// ServiceConfig groups token settings.
type ServiceConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service wraps authentication business rules: credential checks and token
// issuance.
type Service struct {
	repo    Repository
	secret  []byte
	access  time.Duration
	refresh time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	access := cfg.AccessTTL
	if access <= 0 {
		access = 15 * time.Minute
	}
	refresh := cfg.RefreshTTL
	if refresh <= 0 {
		refresh = 14 * 24 * time.Hour
	}
	return &Service{repo: repo, secret: []byte(cfg.Secret), access: access, refresh: refresh}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// TokenPair bundles the issued tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssueTokens signs an access/refresh token pair for the account.
func (s *Service) IssueTokens(account *Account) (TokenPair, error) {
	access, err := s.sign(account, TokenTypeAccess, s.access)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(account, TokenTypeRefresh, s.refresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// account is re-read so role or manager changes take effect immediately.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil || !account.IsActive {
		return "", ErrInvalidToken
	}
	return s.sign(account, TokenTypeAccess, s.access)
}

// ActorFromToken validates an access token and resolves the acting identity.
func (s *Service) ActorFromToken(token string) (authz.Actor, error) {
	claims, err := s.parse(token, TokenTypeAccess)
	if err != nil {
		return authz.Actor{}, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return authz.Actor{}, ErrInvalidToken
	}
	return authz.Actor{
		ID:        id,
		Username:  claims.Username,
		Role:      claims.Role,
		ManagerID: claims.ManagerID,
	}, nil
}

func (s *Service) sign(account *Account, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username:  account.Username,
		Role:      account.Role,
		ManagerID: account.ManagerID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(raw, wantType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
