// Package logstore はクライアントから送信されたログを1つのテキストファイルに追記・読み出しする。
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

const (
	// FileName はログディレクトリ内のログファイル名。
	FileName = "log.txt"

	timestampLayout = "2006-01-02 15:04:05"
)

// lineEscaper はメッセージ内の改行をエスケープし、1リクエストで複数行を偽装できないようにする。
// バックスラッシュも \\ にエスケープし、改行と区別できるようにする。
var lineEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`)

// FileStore はログファイルへの追記と全体の読み出しを提供する。
// 追記はミューテックスで直列化する。
type FileStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewFileStore はdir/log.txtを対象とするFileStoreを生成する。
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, FileName),
		now:  time.Now,
	}
}

// Path はログファイルのパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

// FormatLine はログファイルに書き込む1行を生成する。
// 形式は "[YYYY-MM-DD HH:MM:SS] - message\n"（ローカル時刻）。
func FormatLine(at time.Time, message string) string {
	return "[" + at.Local().Format(timestampLayout) + "] - " + lineEscaper.Replace(message) + "\n"
}

// Append はメッセージにタイムスタンプを付けて1行追記する。
// ファイルが存在しない場合は作成する。失敗時はmodel.ErrStorageIOをラップして返す。
func (s *FileStore) Append(message string) error {
	line := FormatLine(s.now(), message)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: failed to open log file: %v", model.ErrStorageIO, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to write log file: %v", model.ErrStorageIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close log file: %v", model.ErrStorageIO, err)
	}
	return nil
}

// ReadAll はログファイル全体を返す。
// ファイルが存在しない、または読み取れない場合はmodel.ErrNotFoundをラップして返す。
func (s *FileStore) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNotFound, err)
	}
	return data, nil
}
