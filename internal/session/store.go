// Package session はログイン成功時に発行するサーバー側セッションを管理する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/repository"
)

// idBytes はセッションIDの生成に使う乱数のバイト数（256ビット）。
const idBytes = 32

// Options はStoreの動作設定。
type Options struct {
	// EnforceExpiry がtrueの場合、Lookupでクレームの有効期限を検査し、
	// 期限切れのセッションを削除してErrSessionNotFoundを返す。
	EnforceExpiry bool
}

// Store はセッションIDの生成と有効期限ポリシーを担い、保存はリポジトリに委譲する。
type Store struct {
	repo          repository.SessionRepository
	enforceExpiry bool
	now           func() time.Time
	newID         func() (string, error)
}

// NewStore はStoreを生成する。
func NewStore(repo repository.SessionRepository, opts Options) *Store {
	return &Store{
		repo:          repo,
		enforceExpiry: opts.EnforceExpiry,
		now:           time.Now,
		newID:         generateID,
	}
}

// EnforcesExpiry は有効期限の検査が有効かを返す。
func (s *Store) EnforcesExpiry() bool {
	return s.enforceExpiry
}

// Create は検証済みクレームに紐づく新しいセッションを発行する。
func (s *Store) Create(ctx context.Context, claims model.VerifiedClaims) (*model.Session, error) {
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        id,
		Claims:    claims,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Lookup はセッションIDに対応するセッションを返す。
// 存在しない場合はmodel.ErrSessionNotFoundを返す。
func (s *Store) Lookup(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, model.ErrSessionNotFound
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.ErrSessionNotFound
	}

	if s.enforceExpiry && session.Claims.Expired(s.now()) {
		if err := s.repo.DeleteByID(ctx, id); err != nil {
			slog.Warn("failed to purge expired session",
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("%w: expired", model.ErrSessionNotFound)
	}

	return session, nil
}

// Destroy はセッションを削除する。存在しないIDでもエラーにしない。
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired は期限切れのセッションを一括削除し、削除件数を返す。
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return n, nil
}

// Ping はリポジトリが疎通確認に対応していれば実行する。
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.repo.(repository.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// generateID は暗号論的に安全なセッションIDを生成する。
func generateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
