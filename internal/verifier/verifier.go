// Package verifier はIDトークンの検証を提供する。
//
// 外部のIDプロバイダーが発行したトークンを検証し、model.VerifiedClaims を返す。
// 生のトークン文字列はログにも永続ストアにも書き出さない。
package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

// Verifier はIDトークン検証のインターフェース。
// 失敗時は model.ErrInvalidToken、model.ErrExpiredToken、
// model.ErrVerificationUnavailable のいずれかをラップしたエラーを返す。
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.VerifiedClaims, error)
}

// VerifierFunc は関数をVerifierとして扱うためのアダプタ。
type VerifierFunc func(ctx context.Context, token string) (*model.VerifiedClaims, error)

// Verify はVerifierインターフェースを実装する。
func (f VerifierFunc) Verify(ctx context.Context, token string) (*model.VerifiedClaims, error) {
	return f(ctx, token)
}

// Observer は検証1回ごとのレイテンシと結果を受け取る。
// メトリクス収集に使用する。
type Observer interface {
	ObserveVerification(duration time.Duration, err error)
}

// DefaultTimeout は検証呼び出しに適用するデフォルトのタイムアウト。
const DefaultTimeout = 5 * time.Second

type timeoutVerifier struct {
	inner    Verifier
	timeout  time.Duration
	observer Observer
}

// WithTimeout は検証にタイムアウトを適用するVerifierを返す。
// タイムアウトまたはコンテキストのキャンセルは model.ErrVerificationUnavailable として扱う。
// 内側のVerifierがコンテキストを無視しても呼び出し元はタイムアウトで解放される。
// observerがnilの場合は計測しない。
func WithTimeout(inner Verifier, timeout time.Duration, observer Observer) Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutVerifier{inner: inner, timeout: timeout, observer: observer}
}

type verifyResult struct {
	claims *model.VerifiedClaims
	err    error
}

// Verify はタイムアウト付きで内側のVerifierを呼び出す。
func (v *timeoutVerifier) Verify(ctx context.Context, token string) (*model.VerifiedClaims, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan verifyResult, 1)
	go func() {
		claims, err := v.inner.Verify(ctx, token)
		done <- verifyResult{claims: claims, err: err}
	}()

	var res verifyResult
	select {
	case res = <-done:
		if res.err != nil && isContextError(res.err) {
			res = verifyResult{err: errors.Join(model.ErrVerificationUnavailable, res.err)}
		}
	case <-ctx.Done():
		res = verifyResult{err: errors.Join(model.ErrVerificationUnavailable, ctx.Err())}
	}

	if v.observer != nil {
		v.observer.ObserveVerification(time.Since(start), res.err)
	}
	return res.claims, res.err
}

// isContextError はエラーがコンテキスト由来かつ分類済みでないかを判定する。
func isContextError(err error) bool {
	if errors.Is(err, model.ErrInvalidToken) ||
		errors.Is(err, model.ErrExpiredToken) ||
		errors.Is(err, model.ErrVerificationUnavailable) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
