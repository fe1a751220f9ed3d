package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hitoshi/loggate/internal/model"
)

// MinSecretLength は署名鍵の最小バイト長。
const MinSecretLength = 32

// Codec はセッションIDとCookie値を相互変換する。
// Cookie値は "<id>.<base64url(HMAC-SHA256(secret, id))>" 形式。
type Codec struct {
	secret []byte
}

// NewCodec はCodecを生成する。secretはMinSecretLengthバイト以上でなければならない。
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Codec{secret: s}, nil
}

// NewRandomSecret はプロセス起動時に使う署名鍵を生成する。
func NewRandomSecret() ([]byte, error) {
	b := make([]byte, MinSecretLength)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return b, nil
}

// Encode はセッションIDに署名を付けたCookie値を返す。
func (c *Codec) Encode(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(c.sign(id))
}

// Decode はCookie値を検証してセッションIDを返す。
// 形式不正や署名不一致はmodel.ErrSessionNotFoundとして扱う。
func (c *Codec) Decode(value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" || sig == "" {
		return "", model.ErrSessionNotFound
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", model.ErrSessionNotFound
	}
	if !hmac.Equal(got, c.sign(id)) {
		return "", model.ErrSessionNotFound
	}
	return id, nil
}

func (c *Codec) sign(id string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(id))
	return mac.Sum(nil)
}
