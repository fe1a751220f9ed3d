package verifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	last  error
}

func (o *recordingObserver) ObserveVerification(d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.last = err
}

func TestWithTimeout_Success_PassesThroughClaims(t *testing.T) {
	inner := VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		return &model.VerifiedClaims{Subject: "user-1"}, nil
	})
	obs := &recordingObserver{}
	v := WithTimeout(inner, time.Second, obs)

	claims, err := v.Verify(context.Background(), "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-1")
	}
	if obs.calls != 1 || obs.last != nil {
		t.Errorf("observer calls = %d, last = %v", obs.calls, obs.last)
	}
}

func TestWithTimeout_SlowVerifier_ReturnsErrVerificationUnavailable(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	inner := VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		// コンテキストを無視する実装でもタイムアウトで解放されること
		<-release
		return &model.VerifiedClaims{Subject: "late"}, nil
	})
	v := WithTimeout(inner, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := v.Verify(context.Background(), "token")
	if !errors.Is(err, model.ErrVerificationUnavailable) {
		t.Errorf("err = %v, want ErrVerificationUnavailable", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Verify should return promptly after timeout")
	}
}

func TestWithTimeout_InnerContextError_ReturnsErrVerificationUnavailable(t *testing.T) {
	inner := VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		return nil, context.Canceled
	})
	v := WithTimeout(inner, time.Second, nil)

	_, err := v.Verify(context.Background(), "token")
	if !errors.Is(err, model.ErrVerificationUnavailable) {
		t.Errorf("err = %v, want ErrVerificationUnavailable", err)
	}
}

func TestWithTimeout_ClassifiedError_IsKept(t *testing.T) {
	inner := VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		return nil, model.ErrExpiredToken
	})
	obs := &recordingObserver{}
	v := WithTimeout(inner, time.Second, obs)

	_, err := v.Verify(context.Background(), "token")
	if !errors.Is(err, model.ErrExpiredToken) {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
	if errors.Is(err, model.ErrVerificationUnavailable) {
		t.Error("expired token must not be reported as unavailable")
	}
	if !errors.Is(obs.last, model.ErrExpiredToken) {
		t.Errorf("observer last = %v, want ErrExpiredToken", obs.last)
	}
}

func TestWithTimeout_ZeroTimeout_UsesDefault(t *testing.T) {
	v := WithTimeout(VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("expected deadline on context")
		}
		if time.Until(deadline) > DefaultTimeout {
			t.Error("deadline exceeds default timeout")
		}
		return &model.VerifiedClaims{Subject: "s"}, nil
	}), 0, nil)

	if _, err := v.Verify(context.Background(), "token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
