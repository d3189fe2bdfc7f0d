package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonSurvivesWrapping(t *testing.T) {
	base := New(CodeUnauthorized, "INVALID_ISSUER")
	wrapped := Wrap(base, CodeInternal, "set attributes failed")

	assert.Equal(t, "INVALID_ISSUER", Reason(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.True(t, HasCode(wrapped, CodeUnauthorized))
	assert.True(t, Is(wrapped, CodeInternal))
	assert.False(t, Is(wrapped, CodeUnauthorized))
}

func TestReasonOfForeignError(t *testing.T) {
	assert.Equal(t, "", Reason(fmt.Errorf("plain")))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodePaymentRequired: http.StatusPaymentRequired,
		CodeConflict:        http.StatusConflict,
		Code("unknown"):     http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
