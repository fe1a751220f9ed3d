package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loggate/internal/middleware"
	"github.com/hitoshi/loggate/internal/model"
)

// maxLogBodyBytes はログ追記リクエストのボディ上限。
const maxLogBodyBytes = 1 << 20

// LogStore はログの追記と読み出しを行う。logstore.FileStoreが実装する。
type LogStore interface {
	Append(message string) error
	ReadAll() ([]byte, error)
}

// LogAppendRecorder はログ追記の結果を記録する。
type LogAppendRecorder interface {
	RecordLogAppend(err error)
}

// LogHandler はログの追記と取得のHTTPハンドラー。
type LogHandler struct {
	store    LogStore
	recorder LogAppendRecorder
}

// NewLogHandler はLogHandlerを生成する。
func NewLogHandler(store LogStore, recorder LogAppendRecorder) *LogHandler {
	return &LogHandler{store: store, recorder: recorder}
}

// appendLogRequest はログ追記リクエストのボディ。
type appendLogRequest struct {
	Message *string `json:"message"`
}

// Append はJSONボディのmessageをログファイルに1行追記する。
// POST /log
func (h *LogHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	body := http.MaxBytesReader(w, r.Body, maxLogBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.Message == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidLogRequestError())
		return
	}

	err := h.store.Append(*req.Message)
	if h.recorder != nil {
		h.recorder.RecordLogAppend(err)
	}
	if err != nil {
		slog.Error("failed to append log entry",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStorageFailedError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Log entry added successfully"})
}

// GetLogs はログファイル全体をテキストで返す。
// GET /get_logs
func (h *LogHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.ReadAll()
	if err != nil {
		slog.Warn("failed to read log file", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewLogNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
