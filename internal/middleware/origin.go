package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/security"
)

// OriginGuardConfig はオリジン検証ミドルウェアの設定。
type OriginGuardConfig struct {
	// BaseURL はサーバー自身のオリジン。空の場合はリクエストのHostとTLS有無から導出する。
	BaseURL string
	// TrustedOrigins はサーバー自身以外に許可するオリジン（CORS許可オリジン）。
	TrustedOrigins []string
}

// NewOriginGuardMiddleware はRefererヘッダー（無ければOriginヘッダー）が
// サーバー自身のオリジンと一致しないリクエストを403で拒否するミドルウェアを返す。
// どちらのヘッダーも無いリクエストは通過させる。
func NewOriginGuardMiddleware(config OriginGuardConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			declared := r.Header.Get("Referer")
			if declared == "" {
				declared = r.Header.Get("Origin")
			}

			self := config.BaseURL
			if self == "" {
				self = requestOrigin(r)
			}

			err := security.CheckOrigin(declared, self)
			if err != nil {
				for _, trusted := range config.TrustedOrigins {
					if security.CheckOrigin(declared, trusted) == nil {
						err = nil
						break
					}
				}
			}
			if err != nil {
				if !errors.Is(err, model.ErrForbiddenOrigin) {
					err = errors.Join(model.ErrForbiddenOrigin, err)
				}
				logger.Warn("forbidden origin",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestOrigin はリクエストを受けたサーバーのオリジンを返す。
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
