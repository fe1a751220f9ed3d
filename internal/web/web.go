// Package web はログインページとログビューアーのテンプレート、およびそれらが使う
// クライアントスクリプトを埋め込みで提供する。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// AssetsPrefix は埋め込みアセットを配信するURLプレフィックス。
// ログイン前に必要なスクリプトを含むため認証なしで配信する。
const AssetsPrefix = "/assets/"

// FirebaseConfig はログインページに渡すFirebase Webクライアントの設定。
// いずれも公開値であり秘密情報は含まない。
type FirebaseConfig struct {
	APIKey     string
	AuthDomain string
	ProjectID  string
}

// viewerData はログビューアーに渡す値。
type viewerData struct {
	Subject string
	Email   string
}

// Pages はテンプレートを描画する。
type Pages struct {
	firebase  FirebaseConfig
	templates *template.Template
}

// NewPages は埋め込みテンプレートを解析してPagesを生成する。
func NewPages(firebase FirebaseConfig) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Pages{firebase: firebase, templates: tmpl}, nil
}

// RenderLogin はログインページを書き込む。
func (p *Pages) RenderLogin(w http.ResponseWriter) error {
	return p.render(w, "login.html", p.firebase)
}

// RenderViewer はログビューアーを書き込む。
func (p *Pages) RenderViewer(w http.ResponseWriter, subject, email string) error {
	return p.render(w, "log.html", viewerData{Subject: subject, Email: email})
}

// render はバッファに描画してから書き込む。途中で失敗した場合は何も書き込まない。
func (p *Pages) render(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}

// AssetsHandler は埋め込みアセットを配信するハンドラーを返す。
// AssetsPrefix配下にマウントすることを前提とする。
func AssetsHandler() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix(AssetsPrefix, http.FileServer(http.FS(sub)))
}
