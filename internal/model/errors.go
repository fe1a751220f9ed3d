// Package model はドメインモデルとエラー定義を提供する。
package model

import (
	"errors"
	"fmt"
)

// 認証・セッション・パス解決・ストレージで共有する番兵エラー。
// 呼び出し側は errors.Is で判定する。
var (
	// ErrMissingCredential はログイン時にトークンが指定されていないことを示す。
	ErrMissingCredential = errors.New("missing credential")
	// ErrNoCredential は保護リソースへのリクエストに認証情報が一切ないことを示す。
	ErrNoCredential = errors.New("no credential")
	// ErrInvalidToken は形式不正・署名不一致など検証に失敗したトークンを示す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は有効期限切れのトークンを示す。
	ErrExpiredToken = errors.New("expired token")
	// ErrVerificationUnavailable は検証基盤（公開鍵エンドポイント等）が利用できないことを示す。
	// タイムアウトもこれに含む。
	ErrVerificationUnavailable = errors.New("verification unavailable")
	// ErrSessionNotFound はセッションが存在しない、期限切れ、またはCookieの署名が不正であることを示す。
	ErrSessionNotFound = errors.New("session not found")
	// ErrForbiddenOrigin はリクエストの送信元オリジンがサーバー自身と一致しないことを示す。
	ErrForbiddenOrigin = errors.New("forbidden origin")
	// ErrPathEscape は要求パスが静的ファイルのルートディレクトリ外を指すことを示す。
	ErrPathEscape = errors.New("path escapes root")
	// ErrNotFound は要求されたファイルが存在しないことを示す。
	ErrNotFound = errors.New("not found")
	// ErrStorageIO はログストアの読み書きに失敗したことを示す。
	ErrStorageIO = errors.New("storage I/O error")
	// ErrUnauthorized はログインフローでトークンが拒否されたことを示す。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInternal はログインフローで内部エラーが発生したことを示す。
	ErrInternal = errors.New("internal error")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingToken     = "MISSING_TOKEN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeForbiddenOrigin  = "FORBIDDEN_ORIGIN"
	ErrCodeStorageFailed    = "STORAGE_FAILED"
	ErrCodeLogNotFound      = "LOG_NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewMissingTokenError はIDトークン未指定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "ID token is required",
		Category: "validation",
		Action:   "フォームフィールド id_token にIDトークンを指定してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// 失敗理由（形式不正・期限切れ等）はメッセージに含めない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidLogRequestError はログ追記リクエストの形式不正エラーを生成する。
func NewInvalidLogRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  `Invalid request. A JSON payload with a "message" field is required.`,
		Category: "validation",
		Action:   `{"message": "..."} 形式のJSONを送信してください。`,
	}
}

// NewForbiddenOriginError はオリジン不一致エラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "このサイトのページから操作してください。",
	}
}

// NewStorageFailedError はログファイル書き込み失敗エラーを生成する。
func NewStorageFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  "ログファイルへの書き込みに失敗しました。",
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewLogNotFoundError はログファイルが読み取れない場合のエラーを生成する。
func NewLogNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeLogNotFound,
		Message:  "ログファイルが見つからないか、読み取れません。",
		Category: "storage",
		Action:   "ログが1件以上記録されているか確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再試行してください。",
	}
}

// NewMethodNotAllowedError は既知のパスに対する許可されていないメソッドのエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method Not Allowed",
		Category: "validation",
		Action:   "Allowヘッダーに示されたメソッドを使用してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
