package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/loggate/internal/model"
	"github.com/hitoshi/loggate/internal/security"
)

// PathResolver は要求パスを静的ルート配下の実ファイルに解決する。
// security.StaticResolverが実装する。
type PathResolver interface {
	Resolve(requested string) (security.ResolvedPath, error)
}

// StaticHandler は静的ファイルのHTTPハンドラー。
type StaticHandler struct {
	resolver PathResolver
}

// NewStaticHandler はStaticHandlerを生成する。
func NewStaticHandler(resolver PathResolver) *StaticHandler {
	return &StaticHandler{resolver: resolver}
}

// Serve は静的ルート配下のファイルを返す。
// 解決に失敗した場合は理由によらず404を返し、ルート外を指す要求はWarnで記録する。
// GET /static/*
func (h *StaticHandler) Serve(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "*")

	resolved, err := h.resolver.Resolve(requested)
	if err != nil {
		if errors.Is(err, model.ErrPathEscape) {
			slog.Warn("static path escape rejected",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(resolved.String())
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
