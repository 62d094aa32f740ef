package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/washpay/internal/models"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	identity := models.Identity{UserID: uuid.New(), Role: models.RoleWasher}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "empty secret must not be allowed")

		_, err = New(Config{SecretKey: "secret", Alg: "nope"})
		require.Error(t, err, "unknown alg must not be allowed")
	})

	t.Run("issue and parse", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", AccessTTL: time.Hour})
		require.NoError(t, err)

		issued, err := m.Issue(identity)
		require.NoError(t, err)
		assert.NotEmpty(t, issued.Value)
		assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 2*time.Second)

		parsed, err := m.ParseAccess(issued.Value)
		require.NoError(t, err)
		require.Equal(t, identity, parsed)
	})

	t.Run("issue unknown role", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = m.Issue(models.Identity{UserID: uuid.New(), Role: "root"})
		require.ErrorIs(t, err, ErrUnknownRole)
	})

	t.Run("parse fails", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		other, err := New(Config{SecretKey: "other"})
		require.NoError(t, err)
		foreign, err := other.Issue(identity)
		require.NoError(t, err)

		expired, err := m.IssueWithTTL(identity, -time.Minute)
		require.NoError(t, err)

		noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			UserID:           identity.UserID,
			Role:             models.RoleAdmin,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		roleless, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			UserID:           identity.UserID,
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		tests := map[string]string{
			"garbage":      "not-a-token",
			"wrong key":    foreign.Value,
			"expired":      expired.Value,
			"none alg":     noneAlg,
			"missing role": roleless,
		}

		for name, token := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := m.ParseAccess(token)
				require.Error(t, err)
			})
		}
	})
}
