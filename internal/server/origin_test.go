package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCheckOrigin_Production(t *testing.T) {
	check := NewCheckOrigin("https://okaygoal.app", false)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"no origin header (non-browser client)", "", true},
		{"own origin", "https://okaygoal.app", true},
		{"other origin", "https://evil.example.com", false},
		{"scheme mismatch", "http://okaygoal.app", false},
		{"localhost rejected in production", "http://localhost:3000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, check(requestWithOrigin(tt.origin)))
		})
	}
}

func TestCheckOrigin_Development(t *testing.T) {
	check := NewCheckOrigin("https://okaygoal.app", true)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"localhost", "http://localhost:3000", true},
		{"loopback", "http://127.0.0.1:5173", true},
		{"own origin", "https://okaygoal.app", true},
		{"other origin", "https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, check(requestWithOrigin(tt.origin)))
		})
	}
}

func TestCheckOrigin_UnparsableAppURL(t *testing.T) {
	check := NewCheckOrigin("not a url", false)

	// With no usable own origin, only non-browser requests pass.
	assert.True(t, check(requestWithOrigin("")))
	assert.False(t, check(requestWithOrigin("https://okaygoal.app")))
}
