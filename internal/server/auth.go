package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"welfareflow/internal/domain"
	"welfareflow/internal/logger"
	"welfareflow/internal/officer"
	"welfareflow/internal/repo"
)

type AuthConfig struct {
	JWTSecret                string
	AllowLegacyOfficerHeader bool
	Logger                   *logger.Logger
}

// Principal is the authenticated caller resolved against the officer directory.
type Principal struct {
	Officer domain.Officer
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() *logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Nop()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// userFromContext returns the caller, citizen or officer.
func userFromContext(ctx context.Context) (domain.Officer, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Officer.Username != "" {
		return p.Officer, nil
	}
	return domain.Officer{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// officerFromContext returns the caller and rejects citizen accounts.
func officerFromContext(ctx context.Context) (domain.Officer, huma.StatusError) {
	o, authErr := userFromContext(ctx)
	if authErr != nil {
		return domain.Officer{}, authErr
	}
	if err := officer.RequireOfficer(o); err != nil {
		return domain.Officer{}, newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	return o, nil
}

// SignToken mints an HS256 bearer token for username.
func SignToken(secret, username string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  username,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateJWT(token string, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return "", err
	}
	if apiKey.Username == "" {
		return "", errors.New("api key missing username")
	}
	return apiKey.Username, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the caller once per request: credentials name a
// username, the officer directory turns it into the record handlers act on.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	dir := officer.Directory{Store: r}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			legacy := strings.TrimSpace(req.Header.Get("X-Officer"))

			var username, source string
			var err error
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					err = errors.New("malformed authorization header")
					break
				}
				username, err = authenticateJWT(token, cfg.JWTSecret)
				source = "jwt"
			case apiKeyHeader != "":
				username, err = authenticateAPIKey(req.Context(), r, apiKeyHeader)
				source = "api_key"
			case legacy != "" && cfg.AllowLegacyOfficerHeader:
				cfg.logger().Warn("legacy X-Officer header used without credentials", "username", legacy)
				username, source = legacy, "legacy_header"
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				cfg.logger().Warn("authentication failed", "source", source, "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			o, err := dir.Lookup(req.Context(), username)
			if err != nil {
				cfg.logger().Warn("unknown user", "username", username, "source", source, "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{Officer: o, Source: source})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
