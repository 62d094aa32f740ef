package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/models"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

var ErrUnknownRole = errors.New("unknown role")

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Role   string    `json:"role"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// If not set than default is used
	AccessTTL time.Duration
}

// Issues and verifies access tokens. Users are managed by the platform,
// the payout service only trusts the identity carried by the token
type TokenManager struct {
	key       string
	alg       jwt.SigningMethod
	accessTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method %q", cfg.Alg)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       cfg.SecretKey,
		alg:       alg,
		accessTTL: cfg.AccessTTL,
	}, nil
}

func (m *TokenManager) Issue(identity models.Identity) (models.IssuedToken, error) {
	return m.IssueWithTTL(identity, m.accessTTL)
}

func (m *TokenManager) IssueWithTTL(identity models.Identity, ttl time.Duration) (models.IssuedToken, error) {
	var issued models.IssuedToken

	if !validRole(identity.Role) {
		return issued, ErrUnknownRole
	}

	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: identity.UserID,
			Role:   identity.Role,
		},
	)
	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return issued, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (models.Identity, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	if !validRole(claims.Role) {
		return models.Identity{}, ErrUnknownRole
	}

	return models.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

func validRole(role string) bool {
	return role == models.RoleWasher || role == models.RoleAdmin
}
