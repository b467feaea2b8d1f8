package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ebook-pix/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", common.ClientIP(req))

	req.RemoteAddr = "198.51.100.4"
	require.Equal(t, "198.51.100.4", common.ClientIP(req))
	require.Empty(t, common.ClientIP(nil))
}

func TestSha256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", common.Sha256Hex(nil))
}
