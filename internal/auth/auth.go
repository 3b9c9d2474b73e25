package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jayjaytrn/freshflow/models"
)

const (
	DefaultSecretKey = "supersecretkey"
	DefaultTTL       = 24 * time.Hour
)

type Claims struct {
	jwt.RegisteredClaims
	UUID string
}

// Manager issues and checks bearer tokens.
type Manager struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if secret == "" {
		secret = DefaultSecretKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

func (m *Manager) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func (m *Manager) BuildJWT(UUID string) (string, error) {
	now := m.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UUID: UUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	})

	tokenString, err := token.SignedString(m.Secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (m *Manager) ValidateJWT(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.Secret, nil
		})
	if err != nil {
		return "", fmt.Errorf("%w: token error: %v", models.ErrAuth, err)
	}

	if !token.Valid || claims.UUID == "" {
		return "", fmt.Errorf("%w: token is not valid", models.ErrAuth)
	}

	return claims.UUID, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware, or the zero
// (anonymous) principal.
func PrincipalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey{}).(models.Principal)
	return p
}
