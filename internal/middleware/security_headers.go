package middleware

import "net/http"

// contentSecurityPolicy はログインページがFirebase Authenticationのスクリプトと
// サインインウィジェットを読み込めるように許可リストを設定する。
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://www.gstatic.com https://apis.google.com; " +
	"style-src 'self' https://www.gstatic.com; " +
	"img-src 'self' data: https:; " +
	"connect-src 'self' https://*.googleapis.com; " +
	"frame-src https://*.firebaseapp.com https://accounts.google.com; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// ログ内容や認証ページをキャッシュさせないため、全レスポンスにCache-Control: no-storeを付与する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
