package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/hitoshi/loggate/internal/model"
)

// origin はスキーム・ホスト・ポートの組。
type origin struct {
	scheme string
	host   string
	port   string
}

// parseOrigin はURL文字列からオリジンを取り出す。
// スキームとホストの大文字小文字を正規化し、既定ポートを補う。
func parseOrigin(raw string) (origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return origin{}, err
	}
	if u.Opaque != "" || u.Host == "" {
		return origin{}, fmt.Errorf("not an absolute origin: %q", raw)
	}

	o := origin{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Hostname()),
		port:   u.Port(),
	}
	switch o.scheme {
	case "http":
		if o.port == "" {
			o.port = "80"
		}
	case "https":
		if o.port == "" {
			o.port = "443"
		}
	default:
		return origin{}, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if o.host == "" {
		return origin{}, fmt.Errorf("empty host: %q", raw)
	}
	return o, nil
}

// String はオリジンを "scheme://host:port" 形式で返す。
func (o origin) String() string {
	return o.scheme + "://" + net.JoinHostPort(o.host, o.port)
}

// CheckOrigin は申告されたオリジン（RefererまたはOrigin）がサーバー自身と一致するかを検証する。
// declaredが空の場合は判定材料がないため許可する。
// 解析できない値や不透明なオリジン（"null"）はmodel.ErrForbiddenOriginとして拒否する。
func CheckOrigin(declared, self string) error {
	if declared == "" {
		return nil
	}

	want, err := parseOrigin(self)
	if err != nil {
		return fmt.Errorf("%w: invalid server origin: %v", model.ErrForbiddenOrigin, err)
	}
	got, err := parseOrigin(declared)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrForbiddenOrigin, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s does not match %s", model.ErrForbiddenOrigin, got, want)
	}
	return nil
}
