package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		code     ErrorCode
		expected int
	}{
		{"validation maps to 400", ErrCodeValidationPriority, http.StatusBadRequest},
		{"missing field maps to 400", ErrCodeValidationMissingField, http.StatusBadRequest},
		{"subscriber not found maps to 404", ErrCodeNotFoundSubscriber, http.StatusNotFound},
		{"schedule not found maps to 404", ErrCodeNotFoundSchedule, http.StatusNotFound},
		{"duplicate processor maps to 409", ErrCodeConflictProcessor, http.StatusConflict},
		{"cache unavailable maps to 503", ErrCodeCacheUnavailable, http.StatusServiceUnavailable},
		{"delivery failure maps to 500", ErrCodeDeliveryFailed, http.StatusInternalServerError},
		{"unknown code maps to 500", ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeCacheUnavailable, "cache store unreachable", underlying)

	wrapped := fmt.Errorf("mirroring connection: %w", appErr)

	var target *AppError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, ErrCodeCacheUnavailable, target.Code)
	assert.True(t, errors.Is(wrapped, underlying))
}

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeNotFoundSubscriber, "subscriber stu_42 not found", nil)
	assert.Equal(t, "not_found_subscriber: subscriber stu_42 not found", err.Error())
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, EventAttendanceUpdate.Valid())
	assert.True(t, EventPing.Valid())
	assert.False(t, EventType("reboot").Valid())
}

func TestJobPriority_Valid(t *testing.T) {
	assert.True(t, PriorityUrgent.Valid())
	assert.True(t, PriorityLow.Valid())
	assert.False(t, JobPriority("critical").Valid())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventNotification, map[string]any{"message": "class starting"})

	assert.NotEmpty(t, ev.ID)
	assert.Contains(t, ev.ID, "evt_")
	assert.Equal(t, EventNotification, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}
