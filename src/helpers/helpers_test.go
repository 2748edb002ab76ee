package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-pulse/src/logger"
)

// -----------------------------------------------------------------------------

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff("op", 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	sentinel := errors.New("permanent")
	attempts := 0
	err := RetryWithBackoff("op", 3, time.Millisecond, func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "op failed after 3 attempts")
}

// -----------------------------------------------------------------------------

func TestStockPulseError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := &NetworkError{StockPulseError{Message: "fetch failed", Cause: cause}}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetch failed")
	assert.Contains(t, err.Error(), "root")
}

// -----------------------------------------------------------------------------

func TestProxyManager_RotationAndValidation(t *testing.T) {
	log := logger.NewLogger("ERROR", "test")
	pm := NewProxyManager([]string{"1.2.3.4:8080", "http://5.6.7.8:3128", "::::bad::::"}, log)

	require.True(t, pm.HasProxies())

	first, err := pm.GetCurrentProxy()
	require.NoError(t, err)
	assert.Equal(t, "http://1.2.3.4:8080", first) // scheme added

	pm.RotateProxy()
	second, _ := pm.GetCurrentProxy()
	assert.Equal(t, "http://5.6.7.8:3128", second)

	pm.RotateProxy()
	wrapped, _ := pm.GetCurrentProxy()
	assert.Equal(t, first, wrapped) // invalid proxy was dropped, rotation wraps
}

func TestProxyManager_Empty(t *testing.T) {
	pm := NewProxyManager(nil, logger.NewLogger("ERROR", "test"))

	assert.False(t, pm.HasProxies())
	proxy, err := pm.GetCurrentProxy()
	require.NoError(t, err)
	assert.Empty(t, proxy)
	pm.RotateProxy() // no-op, must not panic
	assert.NotEmpty(t, pm.GetUserAgent())
}

func TestFormatProxy(t *testing.T) {
	assert.Equal(t, "http://host:80", FormatProxy("host:80"))
	assert.Equal(t, "socks5://host:80", FormatProxy("socks5://host:80"))
}
