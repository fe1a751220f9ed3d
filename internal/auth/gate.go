// Package auth は保護リソースへのアクセス判定とログイン/ログアウトを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/verifier"
)

// Method は認証に使われた資格情報の種類。
type Method string

const (
	MethodHeader  Method = "header"
	MethodForm    Method = "form"
	MethodSession Method = "session"
	MethodNone    Method = "none"
)

// Credentials はリクエストから取り出した資格情報。空文字は「なし」を意味する。
type Credentials struct {
	HeaderToken   string
	FormToken     string
	SessionCookie string
}

// Method は判定に使われる資格情報の種類を返す。
// ヘッダー、フォーム、セッションCookieの順に最初に存在するものが選ばれる。
func (c Credentials) Method() Method {
	switch {
	case c.HeaderToken != "":
		return MethodHeader
	case c.FormToken != "":
		return MethodForm
	case c.SessionCookie != "":
		return MethodSession
	default:
		return MethodNone
	}
}

// Decision は認可に成功したリクエストの判定結果。
type Decision struct {
	Method    Method
	Claims    model.VerifiedClaims
	SessionID string // MethodSessionの場合のみ設定される
}

// SessionLookup はセッションの参照に必要なインターフェース。
// session.Storeの部分集合として定義する。
type SessionLookup interface {
	Lookup(ctx context.Context, id string) (*model.Session, error)
}

// CookieDecoder はCookie値をセッションIDに変換する。
type CookieDecoder interface {
	Decode(value string) (string, error)
}

// Gate は資格情報を検査し、リクエストを認可するかを判定する。
type Gate struct {
	verifier verifier.Verifier
	sessions SessionLookup
	codec    CookieDecoder
}

// NewGate はGateを生成する。
func NewGate(v verifier.Verifier, sessions SessionLookup, codec CookieDecoder) *Gate {
	return &Gate{verifier: v, sessions: sessions, codec: codec}
}

// Authorize は資格情報を1種類だけ評価して判定を返す。
// 選ばれた資格情報が不正な場合、後続の資格情報にはフォールバックしない。
// 資格情報が何もない場合はmodel.ErrNoCredentialを返す。
func (g *Gate) Authorize(ctx context.Context, c Credentials) (*Decision, error) {
	switch method := c.Method(); method {
	case MethodHeader:
		return g.authorizeToken(ctx, method, c.HeaderToken)
	case MethodForm:
		return g.authorizeToken(ctx, method, c.FormToken)
	case MethodSession:
		return g.authorizeSession(ctx, c.SessionCookie)
	default:
		return nil, model.ErrNoCredential
	}
}

func (g *Gate) authorizeToken(ctx context.Context, method Method, token string) (*Decision, error) {
	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s token rejected: %w", method, err)
	}
	return &Decision{Method: method, Claims: *claims}, nil
}

func (g *Gate) authorizeSession(ctx context.Context, cookie string) (*Decision, error) {
	id, err := g.codec.Decode(cookie)
	if err != nil {
		return nil, fmt.Errorf("session cookie rejected: %w", model.ErrSessionNotFound)
	}

	s, err := g.sessions.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return &Decision{Method: MethodSession, Claims: s.Claims, SessionID: s.ID}, nil
}
