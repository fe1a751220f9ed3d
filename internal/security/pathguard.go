package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/loggate/internal/model"
)

// ResolvedPath はルートディレクトリ配下にあることが確認済みの正規化されたファイルパス。
// ResolvePathでのみ生成できる。
type ResolvedPath struct {
	path string
}

// String は正規化済みの絶対パスを返す。
func (p ResolvedPath) String() string {
	return p.path
}

// ResolvePath は要求されたパスをroot配下の実在する通常ファイルに解決する。
// シンボリックリンクを解決した後の実体がrootの外にある場合はmodel.ErrPathEscapeを返す。
// ファイルが存在しない、またはディレクトリの場合はmodel.ErrNotFoundを返す。
func ResolvePath(root, requested string) (ResolvedPath, error) {
	canonicalRoot, err := canonicalizeRoot(root)
	if err != nil {
		return ResolvedPath{}, err
	}
	return resolveUnder(canonicalRoot, requested)
}

func canonicalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	return canonical, nil
}

func resolveUnder(root, requested string) (ResolvedPath, error) {
	if requested == "" {
		return ResolvedPath{}, model.ErrNotFound
	}
	if strings.ContainsRune(requested, 0) {
		return ResolvedPath{}, fmt.Errorf("%w: NUL byte in path", model.ErrPathEscape)
	}
	if filepath.IsAbs(requested) || strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, `\`) {
		return ResolvedPath{}, fmt.Errorf("%w: absolute path", model.ErrPathEscape)
	}

	joined := filepath.Join(root, filepath.FromSlash(requested))
	if !within(root, joined) {
		return ResolvedPath{}, fmt.Errorf("%w: %q", model.ErrPathEscape, requested)
	}

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ResolvedPath{}, model.ErrNotFound
		}
		return ResolvedPath{}, fmt.Errorf("%w: %v", model.ErrNotFound, err)
	}
	if !within(root, canonical) {
		return ResolvedPath{}, fmt.Errorf("%w: %q resolves outside root", model.ErrPathEscape, requested)
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		return ResolvedPath{}, model.ErrNotFound
	}
	return ResolvedPath{path: canonical}, nil
}

// within はpathがrootの真の子孫であるかを判定する。
// "/a/static-evil" は "/a/static" の配下とはみなさない。
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// StaticResolver は固定のルートディレクトリに対してパスを解決する。
// ルートの正規化は生成時に一度だけ行う。
type StaticResolver struct {
	root string
}

// NewStaticResolver はStaticResolverを生成する。rootが存在しない場合はエラーを返す。
func NewStaticResolver(root string) (*StaticResolver, error) {
	canonical, err := canonicalizeRoot(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", canonical)
	}
	return &StaticResolver{root: canonical}, nil
}

// Root は正規化済みのルートディレクトリを返す。
func (r *StaticResolver) Root() string {
	return r.root
}

// Resolve は要求パスをルート配下のファイルに解決する。
func (r *StaticResolver) Resolve(requested string) (ResolvedPath, error) {
	return resolveUnder(r.root, requested)
}
