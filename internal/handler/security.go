package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/internal/domain/auth"
)

// APIKeyHeader carries a raw API key.
const APIKeyHeader = "api_key"

// SecurityConfig configures caller verification.
type SecurityConfig struct {
	// Pepper is the HMAC key API keys are hashed with.
	Pepper []byte
	// JWTSecret verifies HS256 bearer tokens. Bearer auth is disabled when
	// empty.
	JWTSecret []byte
	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string
}

// SecurityHandler verifies callers by bearer token or API key.
type SecurityHandler struct {
	apikeys auth.Repository
	cfg     SecurityConfig
	parser  *jwt.Parser
}

// NewSecurityHandler returns a SecurityHandler using apikeys for key lookups.
func NewSecurityHandler(apikeys auth.Repository, cfg SecurityConfig) *SecurityHandler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	return &SecurityHandler{apikeys: apikeys, cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Claims are the bearer token claims the service reads.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate returns the principal of r. Bearer tokens take precedence
// over API keys.
func (s *SecurityHandler) Authenticate(ctx context.Context, r *http.Request) (auth.Principal, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return auth.Principal{}, auth.ErrUnauthorized
		}
		return s.bearer(strings.TrimSpace(token))
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return s.apiKey(ctx, key)
	}
	return auth.Principal{}, auth.ErrUnauthorized
}

func (s *SecurityHandler) bearer(token string) (auth.Principal, error) {
	if len(s.cfg.JWTSecret) == 0 || token == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	var claims Claims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.JWTSecret, nil
	})
	if err != nil {
		return auth.Principal{}, errors.Wrap(auth.ErrUnauthorized, err.Error())
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.Wrap(auth.ErrUnauthorized, "missing sub claim")
	}
	return auth.Principal{ID: claims.Subject, Name: claims.Name, Method: auth.MethodBearer}, nil
}

// apiKey hashes key, looks the hash up, and compares it in constant time.
func (s *SecurityHandler) apiKey(ctx context.Context, key string) (auth.Principal, error) {
	hexHash := auth.HashAPIKey(s.cfg.Pepper, key)
	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return auth.Principal{}, err
		}
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}

	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return auth.Principal{ID: "apikey:" + info.ID, Name: info.Name, Method: auth.MethodAPIKey}, nil
}

// RequireAuth rejects requests without a verified caller and stores the
// principal in the request context.
func (s *SecurityHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := s.Authenticate(ctx, r)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				writeError(ctx, w, err)
				return
			}
			zctx.From(ctx).Debug("Unauthorized request", zap.Error(err))
			unauthorized(w)
			return
		}
		ctx = auth.WithPrincipal(ctx, p)
		ctx = zctx.With(ctx, zap.String("principal", p.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
