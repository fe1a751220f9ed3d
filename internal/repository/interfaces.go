// Package repository はセッションデータの永続化インターフェースと実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// 実装は並行呼び出しに対して安全でなければならない。
type SessionRepository interface {
	// Create はセッションを保存する。同一IDが存在する場合は上書きする。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 有効期限の判定は行わない。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はクレームの有効期限がnow以前のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Pinger はバックエンドの疎通確認を行えるリポジトリが実装する。
type Pinger interface {
	Ping(ctx context.Context) error
}
