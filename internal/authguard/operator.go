package authguard

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

// OperatorClaims is the JWT claim set issued on a successful operator
// login, grounded on the teacher's Claims type in jwt_service.go but
// narrowed to the one subject this system's operator login needs.
type OperatorClaims struct {
	jwt.RegisteredClaims
	LoginID string `json:"login_id"`
}

// RevocationCache is the subset of a Redis client an OperatorGuard needs
// to blacklist a cookie before its JWT expiry, matching the method set of
// internal/adapter/cache's Redis wrapper.
type RevocationCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// OperatorGuard issues and validates the operator's session cookie. A nil
// RevocationCache degrades ValidateCookie to JWT-expiry-only checking,
// mirroring the teacher's "Redis not available, running without cache"
// pattern instead of failing closed.
type OperatorGuard struct {
	secret    string
	issuer    string
	ttl       time.Duration
	allowList map[string]bool
	cache     RevocationCache
	log       *zap.Logger
}

// NewOperatorGuard constructs an OperatorGuard. cache may be nil.
func NewOperatorGuard(secret, issuer string, ttl time.Duration, allowList []string, cache RevocationCache, log *zap.Logger) *OperatorGuard {
	allowed := make(map[string]bool, len(allowList))
	for _, id := range allowList {
		allowed[id] = true
	}
	return &OperatorGuard{
		secret:    secret,
		issuer:    issuer,
		ttl:       ttl,
		allowList: allowed,
		cache:     cache,
		log:       log,
	}
}

// IsAllowed reports whether loginID is present in the configured
// allow-list.
func (g *OperatorGuard) IsAllowed(loginID string) bool {
	return g.allowList[loginID]
}

// IssueCookie signs a session token for an allow-listed loginID. Callers
// must have already checked IsAllowed.
func (g *OperatorGuard) IssueCookie(loginID string) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   loginID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			ID:        uuid.New().String(),
		},
		LoginID: loginID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.secret))
	if err != nil {
		return "", fmt.Errorf("sign operator session token: %w", err)
	}
	return signed, nil
}

// ValidateCookie parses and validates token, returning the login id it was
// issued for. A cache hit against the revocation key rejects the token
// even if it has not yet expired.
func (g *OperatorGuard) ValidateCookie(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(g.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid session token claims")
	}

	if g.cache != nil {
		revoked, err := g.cache.Get(context.Background(), revocationKey(claims.ID))
		if err != nil {
			g.log.Warn("revocation cache lookup failed, falling back to expiry-only validation", zap.Error(err))
		} else if revoked == "revoked" {
			telemetry.RecordCacheAccess(true)
			return "", fmt.Errorf("session token has been revoked")
		} else {
			telemetry.RecordCacheAccess(false)
		}
	}

	return claims.LoginID, nil
}

// Revoke blacklists token's jti in the revocation cache until it would
// naturally expire. A no-op when no cache is configured.
func (g *OperatorGuard) Revoke(token string) error {
	if g.cache == nil {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &OperatorClaims{})
	if err != nil {
		return fmt.Errorf("parse session token for revocation: %w", err)
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok {
		return fmt.Errorf("unexpected claims type during revocation")
	}
	if err := g.cache.Set(context.Background(), revocationKey(claims.ID), "revoked", g.ttl); err != nil {
		return fmt.Errorf("revoke session token: %w", err)
	}
	return nil
}

func revocationKey(jti string) string {
	return "revoked_operator_session:" + jti
}
