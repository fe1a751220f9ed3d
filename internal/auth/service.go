package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/verifier"
)

// SessionIssuer はセッションの発行と破棄に必要なインターフェース。
// session.Storeの部分集合として定義する。
type SessionIssuer interface {
	Create(ctx context.Context, claims model.VerifiedClaims) (*model.Session, error)
	Destroy(ctx context.Context, id string) error
}

// CookieCodec はセッションIDとCookie値を相互変換する。
type CookieCodec interface {
	Encode(id string) string
	Decode(value string) (string, error)
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Session     *model.Session
	CookieValue string
}

// Service はログインとログアウトのビジネスロジックを提供する。
type Service struct {
	verifier verifier.Verifier
	sessions SessionIssuer
	codec    CookieCodec
}

// NewService はServiceを生成する。
func NewService(v verifier.Verifier, sessions SessionIssuer, codec CookieCodec) *Service {
	return &Service{verifier: v, sessions: sessions, codec: codec}
}

// Login はIDトークンを検証し、成功した場合のみ新しいセッションを1件発行する。
//
// 返すエラーは次のいずれかをラップする。
//   - model.ErrMissingCredential: トークンが空
//   - model.ErrUnauthorized: トークンが不正または期限切れ（保存時点で期限切れの場合を含む）
//   - model.ErrInternal: 検証基盤の障害またはセッション保存の失敗
func (s *Service) Login(ctx context.Context, token string) (*LoginResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, model.ErrMissingCredential
	}

	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrVerificationUnavailable):
			return nil, fmt.Errorf("%w: %v", model.ErrInternal, err)
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		}
	}

	session, err := s.sessions.Create(ctx, *claims)
	if err != nil {
		if errors.Is(err, model.ErrExpiredToken) {
			return nil, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}

	slog.Info("user logged in",
		slog.String("subject", claims.Subject),
	)

	return &LoginResult{
		Session:     session,
		CookieValue: s.codec.Encode(session.ID),
	}, nil
}

// Logout はCookie値が指すセッションを破棄する。
// Cookieが無い、署名が不正、セッションが存在しない場合も成功として扱う。
// 返すエラーはバックエンド障害のみで、呼び出し側はログ出力に使う。
func (s *Service) Logout(ctx context.Context, cookieValue string) error {
	if cookieValue == "" {
		return nil
	}
	id, err := s.codec.Decode(cookieValue)
	if err != nil {
		return nil
	}
	if err := s.sessions.Destroy(ctx, id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}
