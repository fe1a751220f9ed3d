package verifier

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/loggate/internal/model"
)

const (
	// FirebaseJWKSURL はFirebase IDトークンの署名鍵を公開するJWKエンドポイント。
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	firebaseIssuerPrefix = "https://securetoken.google.com/"

	// maxSubjectLength はsubクレームの最大バイト長。
	maxSubjectLength = 128
)

var (
	errKeysUnavailable = errors.New("signing keys unavailable")
	errUnknownKey      = errors.New("unknown signing key")
)

// JWKSConfig はJWKSVerifierの設定。
type JWKSConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string

	// HTTPClient は公開鍵の取得に使用する。nilの場合はタイムアウト10秒のクライアントを使う。
	HTTPClient *http.Client

	// CacheTTL はレスポンスにmax-ageがない場合の鍵キャッシュ期間。
	CacheTTL time.Duration
	// MinRefreshInterval は未知のkidを受け取った際に再取得を許可する最短間隔。
	MinRefreshInterval time.Duration
	// Leeway は時刻系クレーム検証の許容誤差。
	Leeway time.Duration
}

// FirebaseConfig はFirebaseプロジェクトのIDトークンを検証するための設定を返す。
func FirebaseConfig(projectID string) JWKSConfig {
	return JWKSConfig{
		JWKSURL:  FirebaseJWKSURL,
		Issuer:   firebaseIssuerPrefix + projectID,
		Audience: projectID,
	}
}

// idTokenClaims はIDトークンのペイロード。
type idTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier はJWKセットで公開されたRSA鍵でRS256署名のIDトークンを検証する。
type JWKSVerifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	keys     *keyCache
	now      func() time.Time
}

// NewJWKSVerifier はJWKSVerifierを生成する。
func NewJWKSVerifier(cfg JWKSConfig) (*JWKSVerifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("issuer and audience are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > 5*time.Minute {
		return nil, fmt.Errorf("invalid leeway: %s", cfg.Leeway)
	}

	return &JWKSVerifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		keys: &keyCache{
			url:        cfg.JWKSURL,
			client:     cfg.HTTPClient,
			ttl:        cfg.CacheTTL,
			minRefresh: cfg.MinRefreshInterval,
			keys:       map[string]*rsa.PublicKey{},
			now:        time.Now,
		},
		now: time.Now,
	}, nil
}

// Verify はIDトークンの署名・発行者・対象者・有効期限を検証する。
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (*model.VerifiedClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", model.ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	claims := &idTokenClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("missing kid")
		}
		return v.keys.key(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" || len(claims.Subject) > maxSubjectLength {
		return nil, fmt.Errorf("%w: invalid subject", model.ErrInvalidToken)
	}

	verified := &model.VerifiedClaims{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Email:   claims.Email,
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}
	return verified, nil
}

// classify はjwtライブラリのエラーを検証失敗の種別に変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, errKeysUnavailable):
		return fmt.Errorf("%w: %v", model.ErrVerificationUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", model.ErrVerificationUnavailable, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", model.ErrExpiredToken, err)
	default:
		return fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}
}

// keyCache はJWKセットから取得したRSA公開鍵をkid単位でキャッシュする。
type keyCache struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	expires   time.Time
}

// key はkidに対応する公開鍵を返す。
// キャッシュに無いkidは鍵のローテーションとみなし、最短間隔を守って1回だけ再取得する。
func (c *keyCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if err := c.refresh(ctx, false); err != nil {
		return nil, err
	}
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}
	if err := c.refresh(ctx, true); err != nil {
		return nil, err
	}
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errUnknownKey, kid)
}

func (c *keyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

// needsRefresh はロック保持中に呼び出すこと。
func (c *keyCache) needsRefresh(force bool) bool {
	now := c.now()
	if force {
		return now.Sub(c.fetchedAt) >= c.minRefresh
	}
	return !now.Before(c.expires)
}

func (c *keyCache) refresh(ctx context.Context, force bool) error {
	c.mu.RLock()
	need := c.needsRefresh(force)
	c.mu.RUnlock()
	if !need {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// ダブルチェック
	if !c.needsRefresh(force) {
		return nil
	}

	keys, maxAge, err := c.fetch(ctx)
	if err != nil {
		// ローテーション確認の失敗は、手持ちの鍵がまだ有効なら未知のkidとして扱う
		if force && len(c.keys) > 0 && c.now().Before(c.expires) {
			return nil
		}
		return fmt.Errorf("%w: %v", errKeysUnavailable, err)
	}

	ttl := c.ttl
	if maxAge > 0 {
		ttl = maxAge
	}
	c.keys = keys
	c.fetchedAt = c.now()
	c.expires = c.fetchedAt.Add(ttl)
	return nil
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (c *keyCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("jwks fetch failed: status=%d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, 0, fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") || k.Kid == "" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}
	if len(keys) == 0 {
		return nil, 0, fmt.Errorf("jwks contains no usable RSA keys")
	}

	return keys, parseMaxAge(resp.Header.Get("Cache-Control")), nil
}

// parseMaxAge はCache-Controlヘッダーのmax-ageを取り出す。無い場合は0を返す。
func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}
