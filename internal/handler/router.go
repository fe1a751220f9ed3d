package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/loggate/internal/metrics"
	"github.com/hitoshi/loggate/internal/middleware"
	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/web"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 認証
	Authorizer  middleware.Authorizer
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ログ・ページ・静的ファイル
	LogStore       LogStore
	Pages          PageRenderer
	StaticResolver PathResolver

	// ヘルスチェック・メトリクス
	HealthPinger   Pinger
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// ミドルウェア設定
	BaseURL           string
	CORSAllowedOrigin string
	TrustProxyHeaders bool
	LoginRateLimiter  *middleware.RateLimiter // nilの場合は制限しない
	LogRateLimiter    *middleware.RateLimiter // nilの場合は制限しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアの実行順序:
//
//	RealIP(任意) → RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS(任意)
//
// 保護ルートはさらに OriginGuard → Auth を通る。
// 未定義のパスは/login.htmlへ302でリダイレクトし、既知のパスへの不正なメソッドは405を返す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var collector metrics.MetricsCollector = metrics.NopCollector{}
	if deps.Metrics != nil {
		collector = deps.Metrics
	}

	r := chi.NewRouter()

	if deps.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.RedirectToLogin(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
	})

	var trusted []string
	if deps.CORSAllowedOrigin != "" {
		trusted = append(trusted, deps.CORSAllowedOrigin)
	}
	originGuard := middleware.NewOriginGuardMiddleware(middleware.OriginGuardConfig{
		BaseURL:        deps.BaseURL,
		TrustedOrigins: trusted,
	}, logger)
	requireAuth := middleware.NewAuthMiddleware(deps.Authorizer, collector, logger)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, collector)
	logHandler := NewLogHandler(deps.LogStore, collector)
	pageHandler := NewPageHandler(deps.Pages)
	staticHandler := NewStaticHandler(deps.StaticResolver)

	// --- 認証不要のルート ---
	r.Get("/login.html", pageHandler.LoginPage)
	r.Get(web.AssetsPrefix+"*", web.AssetsHandler().ServeHTTP)
	if deps.HealthPinger != nil {
		r.Get("/health", NewHealthHandler(deps.HealthPinger).Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// POST /log はトークンを要求しない。クライアントIPごとのレート制限のみ適用する。
	r.With(optionalRateLimit(deps.LogRateLimiter)).Post("/log", logHandler.Append)

	// POST /logout は呼び出し元によらず常に成功を返す。
	r.Post("/logout", authHandler.Logout)

	// --- オリジン検証のみのルート ---
	r.Group(func(r chi.Router) {
		r.Use(originGuard)

		r.With(optionalRateLimit(deps.LoginRateLimiter)).Post("/login", authHandler.Login)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: OriginGuard → Auth
	r.Group(func(r chi.Router) {
		r.Use(originGuard)
		r.Use(requireAuth)

		r.Get("/get_logs", logHandler.GetLogs)
		r.Get("/view_logs", pageHandler.ViewLogs)
		r.Post("/view_logs", pageHandler.ViewLogs)
		r.Get("/static/*", staticHandler.Serve)
	})

	return r
}

// optionalRateLimit はリミッターが未設定の場合に何もしないミドルウェアを返す。
func optionalRateLimit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware()
}
