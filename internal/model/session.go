package model

import "time"

// VerifiedClaims はIDトークンの検証に成功した結果として得られるクレーム。
// Verifierだけが生成し、生成後は変更しない。
type VerifiedClaims struct {
	Subject   string
	Issuer    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired はクレームの有効期限がnowの時点で切れているかを返す。
// ExpiresAtがゼロ値の場合は期限なしとして扱う。
func (c VerifiedClaims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Session はログイン成功時に発行されるサーバー側セッションを表す。
// 更新時は置き換えのみで、既存の値を書き換えない。
type Session struct {
	ID        string
	Claims    VerifiedClaims
	CreatedAt time.Time
}
