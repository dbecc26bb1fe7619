package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "bad frame payload", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: bad frame payload", err.Error())
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	cause := stderrors.New("jpeg: invalid SOI marker")
	err := NewFrameDecodeError(cause)

	assert.Equal(t, ErrCodeFrameDecodeFailed, err.Code)
	assert.Contains(t, err.Error(), "invalid SOI marker")
	assert.ErrorIs(t, err, cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInferenceFailedError(stderrors.New("session closed"))
	err.WithContext("room", "demo").WithContext("frame_id", "f-42")

	assert.Equal(t, "demo", err.Context["room"])
	assert.Equal(t, "f-42", err.Context["frame_id"])
}

func TestConstructors_CodeAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"invalid input", NewInvalidInputError("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{"not found", NewNotFoundError("room"), ErrCodeNotFound, http.StatusNotFound},
		{"unauthorized", NewUnauthorizedError("x"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{"detector unavailable", NewDetectorUnavailableError(nil), ErrCodeDetectorUnavailable, http.StatusServiceUnavailable},
		{"offload timeout", NewOffloadTimeoutError(), ErrCodeOffloadTimeout, http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
		})
	}
}

func TestNewNotFoundError_NamesResource(t *testing.T) {
	assert.Contains(t, NewNotFoundError("room").Error(), "room not found")
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(NewInternalError("boom")))
	assert.False(t, IsAppError(stderrors.New("plain")))
}

func TestGetAppError_UnwrapsChain(t *testing.T) {
	app := NewDetectorUnavailableError(stderrors.New("model still loading"))

	direct := GetAppError(app)
	require.NotNil(t, direct)
	assert.Equal(t, ErrCodeDetectorUnavailable, direct.Code)

	assert.Nil(t, GetAppError(stderrors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
