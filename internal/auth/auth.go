// Package auth verifies bearer tokens issued by the hosted backend and
// exposes the caller's user id to handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	applog "budgetbook/internal/log"
)

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type contextKey struct{}

// Claims are the fields read from a token. The user id is the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	logger *applog.Logger
}

// NewVerifier returns a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		logger: applog.ForComponent(applog.ComponentAuth),
	}
}

// Verify parses the token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// user id in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			unauthorized(w, err)
			return
		}
		claims, err := v.Verify(token)
		if err != nil {
			v.logger.WarnContext(r.Context(), "Rejected bearer token",
				applog.FieldError, err,
				applog.FieldPath, r.URL.Path)
			unauthorized(w, ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, err.Error())
}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Sign issues an HS256 token for userID. The hosted backend issues tokens in
// production; Sign serves tests and local tooling.
func Sign(secret, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
