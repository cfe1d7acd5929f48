package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/pkg/logger"
)

// PermissionsByMethod 返回只读请求需要 read、其余请求需要 execute 的映射。
func PermissionsByMethod() map[string][]string {
	return map[string][]string{
		http.MethodGet:  {PermissionRead},
		http.MethodHead: {PermissionRead},
		"*":             {PermissionExecute},
	}
}

// Middleware 返回认证与授权中间件。Service 未启用时直接放行。
func (s *Service) Middleware(required map[string][]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err == nil {
				perms := required[r.Method]
				if len(perms) == 0 {
					perms = required["*"]
				}
				err = subject.Authorize(perms...)
			}
			if err != nil {
				status := http.StatusUnauthorized
				if xerrors.HasCode(err, CodePermissionDenied) {
					status = http.StatusForbidden
				}
				logger.AuditEvent(r.Context(), "access_denied",
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.Int("status", status),
					slog.String("error", err.Error()),
				)
				writeDenied(w, status, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(xerrors.CodeOf(err)),
			"message": err.Error(),
		},
	})
}
