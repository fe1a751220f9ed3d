// Package app はloggateの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/loggate/internal/auth"
	"github.com/hitoshi/loggate/internal/config"
	"github.com/hitoshi/loggate/internal/database"
	"github.com/hitoshi/loggate/internal/handler"
	"github.com/hitoshi/loggate/internal/logger"
	"github.com/hitoshi/loggate/internal/logstore"
	"github.com/hitoshi/loggate/internal/metrics"
	"github.com/hitoshi/loggate/internal/middleware"
	"github.com/hitoshi/loggate/internal/repository"
	"github.com/hitoshi/loggate/internal/security"
	"github.com/hitoshi/loggate/internal/session"
	"github.com/hitoshi/loggate/internal/verifier"
	"github.com/hitoshi/loggate/internal/web"
	"github.com/hitoshi/loggate/internal/worker/cleanup"
)

// keyFetchTimeout は公開鍵エンドポイントへのHTTPリクエストのタイムアウト。
const keyFetchTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_backend", cfg.SessionBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// sessionBackend は設定に応じて開いたセッションリポジトリと、その後始末。
type sessionBackend struct {
	repo  repository.SessionRepository
	close func() error
}

// openSessionBackend はSESSION_BACKENDに応じたリポジトリを開き、疎通を確認する。
func openSessionBackend(ctx context.Context, cfg *config.Config) (*sessionBackend, error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", opts.Addr))
		return &sessionBackend{
			repo:  repository.NewRedisSessionRepo(rdb, cfg.RedisKeyPrefix, cfg.SessionEnforceExpiry),
			close: rdb.Close,
		}, nil

	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &sessionBackend{
			repo:  repository.NewPostgresSessionRepo(db),
			close: db.Close,
		}, nil

	default:
		return &sessionBackend{
			repo:  repository.NewMemorySessionRepo(),
			close: func() error { return nil },
		}, nil
	}
}

// sessionSecret は設定済みのシークレットを返す。未設定の場合は起動ごとに生成する。
func sessionSecret(cfg *config.Config) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	secret, err := session.NewRandomSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	slog.Warn("SESSION_SECRET is not set; generated a random secret, sessions will not survive a restart")
	return secret, nil
}

// newVerifier は設定からIDトークン検証器を構築する。
// 公開鍵の取得にはSSRF対策済みのHTTPクライアントを使う。
func newVerifier(cfg *config.Config, observer verifier.Observer) (verifier.Verifier, error) {
	jc := verifier.FirebaseConfig(cfg.FirebaseProjectID)
	if cfg.JWKSURL != "" {
		jc.JWKSURL = cfg.JWKSURL
	}
	if cfg.TokenIssuer != "" {
		jc.Issuer = cfg.TokenIssuer
	}
	if err := security.ValidateKeySourceURL(jc.JWKSURL); err != nil {
		return nil, fmt.Errorf("invalid ID_TOKEN_JWKS_URL: %w", err)
	}
	jc.HTTPClient = security.NewSafeClient(keyFetchTimeout)
	jc.CacheTTL = cfg.JWKSCacheTTL

	jv, err := verifier.NewJWKSVerifier(jc)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	return verifier.WithTimeout(jv, cfg.VerifyTimeout, observer), nil
}

// server はHTTPハンドラーと、その停止時に解放するリソースをまとめたもの。
type server struct {
	handler http.Handler
	store   *session.Store
	metrics *metrics.Collector
	cleanup []func()
}

// Close はレートリミッターなどのバックグラウンド処理を停止する。
func (s *server) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// buildServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// vがnilの場合は設定からIDトークン検証器を構築する。
func buildServer(cfg *config.Config, repo repository.SessionRepository, v verifier.Verifier) (*server, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 2. トークン検証
	if v == nil {
		var err error
		v, err = newVerifier(cfg, collector)
		if err != nil {
			return nil, err
		}
	}

	// 3. セッション
	secret, err := sessionSecret(cfg)
	if err != nil {
		return nil, err
	}
	codec, err := session.NewCodec(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create session codec: %w", err)
	}
	store := session.NewStore(repo, session.Options{EnforceExpiry: cfg.SessionEnforceExpiry})

	// 4. ログファイル・静的ファイル・ページ
	if err := os.MkdirAll(cfg.LogDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logs := logstore.NewFileStore(cfg.LogDirectory)

	if err := os.MkdirAll(cfg.StaticDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create static directory: %w", err)
	}
	resolver, err := security.NewStaticResolver(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open static directory: %w", err)
	}

	pages, err := web.NewPages(web.FirebaseConfig{
		APIKey:     cfg.FirebaseAPIKey,
		AuthDomain: cfg.FirebaseAuthDomain,
		ProjectID:  cfg.FirebaseProjectID,
	})
	if err != nil {
		return nil, err
	}

	// 5. レート制限
	loginLimiter := middleware.NewRateLimiter(middleware.PerMinute("login", cfg.RateLimitLogin), slog.Default())
	logLimiter := middleware.NewRateLimiter(middleware.PerMinute("log", cfg.RateLimitLog), slog.Default())

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		Authorizer:  auth.NewGate(v, store, codec),
		AuthService: auth.NewService(v, store, codec),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		LogStore:          logs,
		Pages:             pages,
		StaticResolver:    resolver,
		HealthPinger:      store,
		Metrics:           collector,
		BaseURL:           cfg.BaseURL,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		LoginRateLimiter:  loginLimiter,
		LogRateLimiter:    logLimiter,
	}
	if cfg.MetricsEnabled {
		deps.MetricsHandler = metrics.Handler(reg)
	}

	slog.Info("server components initialized",
		slog.String("log_file", logs.Path()),
		slog.String("static_root", resolver.Root()),
		slog.Bool("enforce_expiry", store.EnforcesExpiry()),
	)

	return &server{
		handler: handler.NewRouter(deps),
		store:   store,
		metrics: collector,
		cleanup: []func(){loginLimiter.Stop, logLimiter.Stop},
	}, nil
}

// runServe はHTTPサーバーモードで起動する。
// セッションバックエンドを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	srv, err := buildServer(cfg, backend.repo, nil)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 有効期限を検査する場合のみ期限切れセッションを定期削除する
	if srv.store.EnforcesExpiry() {
		job := cleanup.NewCleanupJob(srv.store, srv.metrics, slog.Default())
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker は期限切れセッションの削除ジョブのみを実行するワーカーモードで起動する。
// 複数のサーバーでRedisまたはPostgreSQLのセッションを共有する構成で使う。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.SessionBackend == config.BackendMemory {
		return fmt.Errorf("worker requires a shared session backend (redis or postgres), got %q", cfg.SessionBackend)
	}

	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	store := session.NewStore(backend.repo, session.Options{EnforceExpiry: true})
	job := cleanup.NewCleanupJob(store, nil, slog.Default())

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.SessionCleanupInterval))

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はセッションテーブルのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(healthURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
