package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/pkg/storage"
)

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
		http int
	}{
		{OK, "ok", http.StatusOK},
		{InvalidArgument, "invalid_argument", http.StatusBadRequest},
		{NotFound, "not_found", http.StatusNotFound},
		{Canceled, "canceled", 499},
		{Unavailable, "unavailable", http.StatusServiceUnavailable},
		{Internal, "internal", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
			assert.Equal(t, tt.http, tt.code.HTTPCode())
		})
	}
}

func TestNewError_StackOnlyForServerFaults(t *testing.T) {
	assert.Empty(t, NewError(InvalidArgument, "bad", nil).Stack)
	assert.NotEmpty(t, NewError(Internal, "boom", nil).Stack)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(NotFound, "missing", nil))
	assert.Equal(t, NotFound, CodeOf(wrapped))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
	assert.Equal(t, OK, CodeOf(nil))
	assert.True(t, IsCode(wrapped, NotFound))
}

func TestWrapStorageError(t *testing.T) {
	missing := fmt.Errorf("x: %w", storage.ErrNotFound)
	tests := []struct {
		name string
		op   StorageOp
		err  error
		want Code
	}{
		{name: "missing on read", op: StorageRead, err: missing, want: NotFound},
		{name: "missing on write", op: StorageWrite, err: missing, want: Internal},
		{name: "disk failure", op: StorageList, err: errors.New("disk"), want: Internal},
		{name: "canceled", op: StorageRead, err: fmt.Errorf("get: %w", context.Canceled), want: Canceled},
		{name: "deadline", op: StorageWrite, err: context.DeadlineExceeded, want: DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapStorageError(tt.op, "task", tt.err)
			assert.Equal(t, tt.want, CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, WrapStorageError(StorageRead, "task", nil))
}

func TestConvertConnectErrorInterceptor(t *testing.T) {
	shaped := connect.NewError(connect.CodePermissionDenied, errors.New("no"))
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{name: "coded", err: NewError(NotFound, "triage task not found", nil), want: connect.CodeNotFound},
		{name: "already connect", err: shaped, want: connect.CodePermissionDenied},
		{name: "plain", err: errors.New("boom"), want: connect.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unary := NewConvertConnectErrorInterceptor().WrapUnary(
				func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) { return nil, tt.err })
			_, err := unary(context.Background(), connect.NewRequest(&struct{}{}))
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}

	unary := NewConvertConnectErrorInterceptor().WrapUnary(
		func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) { return nil, shaped })
	_, err := unary(context.Background(), connect.NewRequest(&struct{}{}))
	assert.Same(t, shaped, err)
}

func TestWriteJSONError_ValidationBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(context.Background(), rec, NewValidationError("projectId", "required", "projectId is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var got struct {
		Error struct {
			Code    string           `json:"code"`
			Message string           `json:"message"`
			Details []map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "invalid_argument", got.Error.Code)
	assert.Equal(t, "projectId is required", got.Error.Message)
	require.Len(t, got.Error.Details, 1)
	assert.Equal(t, "required", got.Error.Details[0]["ruleId"])
}

func TestConvertErrorChiMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name: "response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONResponseWithStatus(r.Context(), http.StatusCreated, map[string]string{"id": "t1"})
			},
			wantStatus: http.StatusCreated,
			wantBody:   `{"id":"t1"}`,
		},
		{
			name: "error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetNewJSONError(r.Context(), NotFound, "triage task not found", nil)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":{"code":"not_found","message":"triage task not found"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h := NewConvertErrorChiMiddleware()(tt.handler)
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
