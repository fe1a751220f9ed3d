package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/loggate/internal/middleware"
	"github.com/hitoshi/loggate/internal/model"
)

type mockLogStore struct {
	appendFn  func(message string) error
	readAllFn func() ([]byte, error)
}

func (m *mockLogStore) Append(message string) error {
	if m.appendFn != nil {
		return m.appendFn(message)
	}
	return nil
}

func (m *mockLogStore) ReadAll() ([]byte, error) {
	if m.readAllFn != nil {
		return m.readAllFn()
	}
	return nil, nil
}

type mockLogAppendRecorder struct {
	errs []error
}

func (m *mockLogAppendRecorder) RecordLogAppend(err error) {
	m.errs = append(m.errs, err)
}

func TestLogHandler_Append_Success(t *testing.T) {
	var got string
	store := &mockLogStore{
		appendFn: func(message string) error {
			got = message
			return nil
		},
	}
	recorder := &mockLogAppendRecorder{}
	h := NewLogHandler(store, recorder)

	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Append(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got != "hello" {
		t.Errorf("appended = %q, want %q", got, "hello")
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["message"] != "Log entry added successfully" {
		t.Errorf("message = %q", body["message"])
	}
	if len(recorder.errs) != 1 || recorder.errs[0] != nil {
		t.Errorf("recorded = %v, want [nil]", recorder.errs)
	}
}

func TestLogHandler_Append_EmptyMessageAccepted(t *testing.T) {
	called := false
	store := &mockLogStore{
		appendFn: func(message string) error {
			called = true
			return nil
		},
	}
	h := NewLogHandler(store, nil)

	w := httptest.NewRecorder()
	h.Append(w, httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{"message":""}`)))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("store should be called for an empty message")
	}
}

func TestLogHandler_Append_InvalidBody_Returns400(t *testing.T) {
	bodies := map[string]string{
		"empty":          "",
		"not json":       "message=hello",
		"missing field":  `{"text":"hello"}`,
		"null message":   `{"message":null}`,
		"number message": `{"message":42}`,
		"array":          `["hello"]`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			store := &mockLogStore{
				appendFn: func(message string) error {
					t.Error("store must not be called")
					return nil
				},
			}
			h := NewLogHandler(store, nil)

			w := httptest.NewRecorder()
			h.Append(w, httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(body)))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if resp.Code != model.ErrCodeInvalidRequest {
				t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeInvalidRequest)
			}
		})
	}
}

func TestLogHandler_Append_StoreFailure_Returns500(t *testing.T) {
	store := &mockLogStore{
		appendFn: func(message string) error {
			return fmt.Errorf("%w: disk full", model.ErrStorageIO)
		},
	}
	recorder := &mockLogAppendRecorder{}
	h := NewLogHandler(store, recorder)

	w := httptest.NewRecorder()
	h.Append(w, httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{"message":"x"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if len(recorder.errs) != 1 || !errors.Is(recorder.errs[0], model.ErrStorageIO) {
		t.Errorf("recorded = %v, want storage error", recorder.errs)
	}
}

func TestLogHandler_GetLogs_ReturnsPlainText(t *testing.T) {
	store := &mockLogStore{
		readAllFn: func() ([]byte, error) {
			return []byte("[2024-01-01 00:00:00] - hello\n"), nil
		},
	}
	h := NewLogHandler(store, nil)

	w := httptest.NewRecorder()
	h.GetLogs(w, httptest.NewRequest(http.MethodGet, "/get_logs", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "[2024-01-01 00:00:00] - hello\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestLogHandler_GetLogs_Unreadable_Returns404(t *testing.T) {
	store := &mockLogStore{
		readAllFn: func() ([]byte, error) {
			return nil, fmt.Errorf("%w: open log.txt", model.ErrNotFound)
		},
	}
	h := NewLogHandler(store, nil)

	w := httptest.NewRecorder()
	h.GetLogs(w, httptest.NewRequest(http.MethodGet, "/get_logs", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
