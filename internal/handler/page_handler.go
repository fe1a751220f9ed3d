package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/loggate/internal/middleware"
)

// PageRenderer はHTMLページを描画する。web.Pagesが実装する。
type PageRenderer interface {
	RenderLogin(w http.ResponseWriter) error
	RenderViewer(w http.ResponseWriter, subject, email string) error
}

// PageHandler はログインページとログビューアーのHTTPハンドラー。
type PageHandler struct {
	pages PageRenderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(pages PageRenderer) *PageHandler {
	return &PageHandler{pages: pages}
}

// LoginPage はログインページを返す。
// GET /login.html
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.RenderLogin(w); err != nil {
		slog.Error("failed to render login page", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// ViewLogs はログビューアーを返す。認証ミドルウェアの内側で使用する。
// GET|POST /view_logs
func (h *PageHandler) ViewLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		slog.Error("view_logs reached without claims")
		middleware.WriteInternalServerError(w)
		return
	}
	if err := h.pages.RenderViewer(w, claims.Subject, claims.Email); err != nil {
		slog.Error("failed to render log viewer", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
