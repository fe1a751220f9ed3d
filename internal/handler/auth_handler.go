// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loggate/internal/auth"
	"github.com/hitoshi/loggate/internal/middleware"
	"github.com/hitoshi/loggate/internal/model"
)

// maxFormBytes はログインフォームのボディ上限。
const maxFormBytes = 1 << 20

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, token string) (*auth.LoginResult, error)
	Logout(ctx context.Context, cookieValue string) error
}

// LoginRecorder はログイン結果を記録する。
type LoginRecorder interface {
	RecordLogin(err error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

// Login はフォームのIDトークンを検証し、セッションCookieを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	token := r.PostFormValue(middleware.FormTokenField)

	result, err := h.service.Login(r.Context(), token)
	if h.recorder != nil {
		h.recorder.RecordLogin(err)
	}
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMissingCredential):
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingTokenError())
		case errors.Is(err, model.ErrUnauthorized):
			slog.Warn("login rejected",
				slog.String("reason", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		default:
			slog.Error("login failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
			middleware.WriteInternalServerError(w)
		}
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.CookieValue,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Logout はセッションを破棄する。常に成功を返す。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
