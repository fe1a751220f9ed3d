package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。同一IDが存在する場合は置き換える。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject, issuer, email, issued_at, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   subject = EXCLUDED.subject,
		   issuer = EXCLUDED.issuer,
		   email = EXCLUDED.email,
		   issued_at = EXCLUDED.issued_at,
		   expires_at = EXCLUDED.expires_at,
		   created_at = EXCLUDED.created_at`,
		session.ID,
		session.Claims.Subject,
		session.Claims.Issuer,
		session.Claims.Email,
		nullTime(session.Claims.IssuedAt),
		nullTime(session.Claims.ExpiresAt),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var issuedAt, expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, subject, issuer, email, issued_at, expires_at, created_at
		 FROM sessions
		 WHERE id = $1`,
		id,
	).Scan(
		&session.ID,
		&session.Claims.Subject,
		&session.Claims.Issuer,
		&session.Claims.Email,
		&issuedAt,
		&expiresAt,
		&session.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if issuedAt.Valid {
		session.Claims.IssuedAt = issuedAt.Time
	}
	if expiresAt.Valid {
		session.Claims.ExpiresAt = expiresAt.Time
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はexpires_atがnow以前のセッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresSessionRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// compile-time interface check
var (
	_ SessionRepository = (*PostgresSessionRepo)(nil)
	_ Pinger            = (*PostgresSessionRepo)(nil)
)
