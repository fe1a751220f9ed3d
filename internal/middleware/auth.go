// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/loggate/internal/auth"
	"github.com/hitoshi/loggate/internal/model"
)

const (
	// SessionCookieName はセッションCookieの名前。
	SessionCookieName = "session_id"
	// FormTokenField はフォームでIDトークンを送信するフィールド名。
	FormTokenField = "id_token"
	// LoginPagePath は未認証時のリダイレクト先。
	LoginPagePath = "/login.html"

	// maxFormBytes はフォームからトークンを読み取る際のボディ上限。
	maxFormBytes = 1 << 20
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var claimsContextKey = contextKey("claims")

// Authorizer はアクセス判定のインターフェース。auth.Gateが実装する。
type Authorizer interface {
	Authorize(ctx context.Context, c auth.Credentials) (*auth.Decision, error)
}

// AuthDecisionRecorder はアクセス判定の結果を記録する。
type AuthDecisionRecorder interface {
	RecordAuthDecision(method string, err error)
}

// ExtractBearerToken はAuthorizationヘッダーの値からトークンを取り出す。
// "Bearer <token>" 形式と、トークンのみを送る形式の両方を受け付ける。
// "Bearer" の後にトークンが無いヘッダーは資格情報なしとして空文字を返す。
func ExtractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	if strings.EqualFold(scheme, "bearer") {
		if !found {
			return ""
		}
		return strings.TrimSpace(rest)
	}
	return header
}

// ExtractCredentials はリクエストから資格情報を取り出す。
// フォームはPOSTボディのみを対象とし、クエリ文字列のトークンは受け付けない。
func ExtractCredentials(w http.ResponseWriter, r *http.Request) auth.Credentials {
	c := auth.Credentials{
		HeaderToken: ExtractBearerToken(r.Header.Get("Authorization")),
	}
	if r.Method == http.MethodPost && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		c.FormToken = strings.TrimSpace(r.PostFormValue(FormTokenField))
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		c.SessionCookie = cookie.Value
	}
	return c
}

// NewAuthMiddleware は資格情報を検査し、認可されたリクエストのみを通すミドルウェアを返す。
// 認可されたリクエストには検証済みクレームをコンテキストに注入する。
// 拒否理由はサーバーログにのみ記録し、クライアントには理由によらず
// 302 Found で /login.html へのリダイレクトを空のボディで返す。
func NewAuthMiddleware(authorizer Authorizer, recorder AuthDecisionRecorder, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := ExtractCredentials(w, r)
			method := creds.Method()

			decision, err := authorizer.Authorize(r.Context(), creds)
			if recorder != nil {
				recorder.RecordAuthDecision(string(method), err)
			}
			if err != nil {
				logger.Warn("authorization denied",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("auth_method", string(method)),
					slog.String("reason", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				RedirectToLogin(w)
				return
			}

			setLogSubject(r.Context(), decision.Claims.Subject, string(decision.Method))
			ctx := ContextWithClaims(r.Context(), decision.Claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RedirectToLogin は/login.htmlへのボディなしの302レスポンスを書き込む。
func RedirectToLogin(w http.ResponseWriter) {
	w.Header().Set("Location", LoginPagePath)
	w.WriteHeader(http.StatusFound)
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (model.VerifiedClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(model.VerifiedClaims)
	return claims, ok
}

// ContextWithClaims はコンテキストに検証済みクレームを注入する。
func ContextWithClaims(ctx context.Context, claims model.VerifiedClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
