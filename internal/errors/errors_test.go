package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"401", NewAPIError("GET", "/api/positions", http.StatusUnauthorized, "Unauthorized", nil), KindAuth},
		{"expired", Wrap(ErrSessionExpired, "polling"), KindAuth},
		{"validation", NewValidationError("lots", 0, "must be positive"), KindValidation},
		{"read-only", NewSecurityError("stopBot", "read-only mode", ErrReadOnlyMode), KindReadOnly},
		{"server error", NewAPIError("GET", "/api/orders", http.StatusInternalServerError, "boom", nil), KindTransient},
		{"network", Wrapf(ErrConnectionFailed, "GET %s", "/api/ltp"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.Equal(t, "read_only", KindReadOnly.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, "Execution not found: exec-1",
		Message(Wrap(NewAPIError("DELETE", "/api/monitoring/exec-1", http.StatusNotFound, "Execution not found: exec-1", nil), "stop monitor")))
	assert.Equal(t, "Unauthorized", Message(NewAPIError("GET", "/api/user", http.StatusUnauthorized, "token expired", nil)))
	assert.Equal(t, "must be positive", Message(NewValidationError("lots", 0, "must be positive")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}

func TestWrapChains(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	assert.Nil(t, Wrapf(nil, "ctx %d", 1))

	cause := errors.New("io")
	err := NewDataError("historical", "decode failed", cause)
	assert.True(t, Is(Wrap(err, "replay"), cause))

	var de *DataError
	assert.True(t, As(Wrap(err, "replay"), &de))
	assert.Equal(t, "historical", de.DataType)
	assert.True(t, Is(NewValidationError("x", 1, "bad"), ErrInputValidation))
}
