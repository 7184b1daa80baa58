package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopledesk/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "single forwarded ip", xff: "203.0.113.7", want: "203.0.113.7"},
		{name: "forwarded chain takes the first hop", xff: "203.0.113.7, 10.0.0.1, 10.0.0.2", want: "203.0.113.7"},
		{name: "forwarded chain with padding", xff: " 203.0.113.7 ,10.0.0.1", want: "203.0.113.7"},
		{name: "x-real-ip fallback", realIP: "198.51.100.4", want: "198.51.100.4"},
		{name: "forwarded-for wins over x-real-ip", xff: "203.0.113.7", realIP: "198.51.100.4", want: "203.0.113.7"},
		{name: "remote addr strips port", remoteAddr: "192.0.2.9:54321", want: "192.0.2.9"},
		{name: "ipv6 remote addr strips port", remoteAddr: "[::1]:54321", want: "[::1]"},
		{name: "nothing known", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	t.Run("populates ip, user agent and request id", func(t *testing.T) {
		var gotIP, gotUA, gotRequestID string
		handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIP = requestcontext.ClientIP(r.Context())
			gotUA = requestcontext.UserAgent(r.Context())
			gotRequestID = requestcontext.RequestID(r.Context())
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.9:54321"
		r.Header.Set("User-Agent", "peopledesk-test/1.0")
		r.Header.Set("X-Request-ID", "req-7")
		handler.ServeHTTP(httptest.NewRecorder(), r)

		assert.Equal(t, "192.0.2.9", gotIP)
		assert.Equal(t, "peopledesk-test/1.0", gotUA)
		assert.Equal(t, "req-7", gotRequestID)
	})

	t.Run("generates a request id when the header is absent", func(t *testing.T) {
		var gotRequestID string
		handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotRequestID = requestcontext.RequestID(r.Context())
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, gotRequestID)
	})
}
