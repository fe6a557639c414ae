package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/types"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/stats", nil)

	JSON(rec, req, http.StatusOK, APIResponse{Data: map[string]any{"ok": true}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"ok":true}}`, rec.Body.String())
}

func TestError_AppErrorMapsStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", nil),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found_subscriber",
		},
		{
			name:       "validation",
			err:        types.NewAppError(types.ErrCodeValidationPriority, "unknown priority", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_invalid_priority",
		},
		{
			name:       "wrapped app error",
			err:        errors.Join(errors.New("outer"), types.NewAppError(types.ErrCodeConflictSchedule, "duplicate", nil)),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict_schedule_registered",
		},
		{
			name:       "generic error is opaque",
			err:        errors.New("pool exhausted at 10.0.0.3"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_unexpected_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/schedules", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))

			Error(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeErrorBody(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-42", resp.Error.RequestID)
			// Internal error text never leaks through the generic path.
			assert.NotContains(t, resp.Error.Message, "10.0.0.3")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type enqueueRequest struct {
		Name     string `json:"name"`
		Priority string `json:"priority"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"metrics_rollup","priority":"normal"}`},
		{name: "malformed", body: `{"name":`, wantErr: true},
		{name: "unknown field", body: `{"name":"x","extra":1}`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "two values", body: `{"name":"a"}{"name":"b"}`, wantErr: true},
		{name: "wrong type", body: `{"name":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(tt.body))

			var dst enqueueRequest
			err := DecodeJSON(rec, req, &dst)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "metrics_rollup", dst.Name)
				return
			}
			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
		})
	}
}
