package auth

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/repository"
	"github.com/hitoshi/loggate/internal/session"
	"github.com/hitoshi/loggate/internal/verifier"
)

// stubVerifier は "good" のみを受け付け、"expired" は期限切れ、"down" は検証基盤障害を返す。
func stubVerifier(calls *int) verifier.Verifier {
	return verifier.VerifierFunc(func(ctx context.Context, token string) (*model.VerifiedClaims, error) {
		if calls != nil {
			*calls++
		}
		switch token {
		case "good":
			return &model.VerifiedClaims{
				Subject:   "user-1",
				Issuer:    "https://securetoken.google.com/loggate-test",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		case "expired":
			return nil, model.ErrExpiredToken
		case "down":
			return nil, model.ErrVerificationUnavailable
		default:
			return nil, model.ErrInvalidToken
		}
	})
}

func newTestStore(t *testing.T) (*session.Store, *repository.MemorySessionRepo, *session.Codec) {
	t.Helper()
	repo := repository.NewMemorySessionRepo()
	codec, err := session.NewCodec(bytes.Repeat([]byte("s"), session.MinSecretLength))
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	return session.NewStore(repo, session.Options{}), repo, codec
}
