package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/loggate/internal/security"
)

func newStaticTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "static")
	if err := os.MkdirAll(filepath.Join(root, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "css", "app.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver, err := security.NewStaticResolver(root)
	if err != nil {
		t.Fatalf("NewStaticResolver returned error: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/static/*", NewStaticHandler(resolver).Serve)
	return r, base
}

func TestStaticHandler_ServesFile(t *testing.T) {
	r, _ := newStaticTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "body{}" {
		t.Errorf("body = %q, want %q", w.Body.String(), "body{}")
	}
}

func TestStaticHandler_Rejections_Return404(t *testing.T) {
	r, _ := newStaticTestRouter(t)

	paths := []string{
		"/static/missing.css",
		"/static/../secret.txt",
		"/static/css/../../secret.txt",
		"/static/css",
		"/static/",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
			}
			if w.Body.String() == "secret" {
				t.Error("file outside the static root was served")
			}
		})
	}
}
