package core

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tippslottet/internal/types"
)

// CronSecretMiddleware protects the cron endpoints. The caller presents the
// shared cron secret either as "Authorization: Bearer <secret>" or in the
// X-Cron-Secret header. Comparison is constant time.
func (s *Server) CronSecretMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := extractBearerToken(r.Header.Get("Authorization"))
		if presented == "" {
			presented = r.Header.Get("X-Cron-Secret")
		}
		if presented == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthCronSecret, "cron secret is required")
			return
		}

		secret := s.Config.Cron.Secret.Unmask()
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			s.Logger.Warn("cron secret rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthCronSecret, "cron secret is invalid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminKeyMiddleware protects the admin endpoints. The caller presents the
// admin API key in the X-Api-Key header (or as a Bearer token); it is
// verified against the configured bcrypt hash. An optional X-User-Email
// header identifies the acting admin for the audit log; when present, the
// address must carry the admin role or the request is refused.
func (s *Server) AdminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if key == "" {
			key = extractBearerToken(r.Header.Get("Authorization"))
		}
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "admin API key is required")
			return
		}

		hash := []byte(s.Config.Security.AdminAPIKeyHash.Unmask())
		if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
			s.Logger.Warn("admin API key rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "admin API key is invalid")
			return
		}

		ctx := r.Context()
		if email := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Email"))); email != "" {
			isAdmin, err := s.Auth.IsEmailAdmin(ctx, email)
			if err != nil {
				Error(w, r, err)
				return
			}
			if !isAdmin {
				s.Logger.Warn("admin action attempted by non-admin",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				Error(w, r, types.NewAppError(types.ErrCodePermissionNotAdmin,
					"your address does not have admin rights", nil))
				return
			}
			ctx = types.WithActorEmail(ctx, email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIdentityMiddleware protects the participant endpoints. Authentication
// itself happens in the identity-aware proxy in front of the service, which
// forwards the verified address in X-User-Email; this middleware enforces the
// whitelist against that identity.
func (s *Server) UserIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Email")))
		if email == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "authenticated identity is required")
			return
		}

		if s.Config.Security.WhitelistEnabled {
			ok, err := s.Auth.IsEmailWhitelisted(r.Context(), email)
			if err != nil {
				Error(w, r, err)
				return
			}
			if !ok {
				s.Logger.Warn("request from non-whitelisted user",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				Error(w, r, types.NewAppError(types.ErrCodePermissionNotWhitelisted,
					"your address is not on the participant whitelist", nil))
				return
			}
		}

		ctx := types.WithActorEmail(r.Context(), email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses "Bearer <token>" case-insensitively per RFC 7235.
// Returns an empty string if the scheme does not match.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}
