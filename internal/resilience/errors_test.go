package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("bad gateway"), 502)))
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("lookup api.serper.dev: no such host")))
	assert.False(t, IsTransient(errors.New("invalid api key")))
}

func TestIsTransientSurvivesWrapping(t *testing.T) {
	inner := NewTransientError(errors.New("service unavailable"), 503)
	wrapped := eris.Wrap(inner, "serper: search")
	assert.True(t, IsTransient(wrapped))

	wrapped = eris.Wrap(fmt.Errorf("call failed: %w", inner), "pool: execute")
	assert.True(t, IsTransient(wrapped))
}

func TestQuotaIsNotTransient(t *testing.T) {
	qe := NewQuotaError(errors.New("daily limit reached"), "brave")
	assert.True(t, IsQuota(qe))
	assert.False(t, IsTransient(qe), "exhausted quota cannot recover before the daily reset")

	wrapped := eris.Wrap(qe, "pool: execute")
	assert.True(t, IsQuota(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 429} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
