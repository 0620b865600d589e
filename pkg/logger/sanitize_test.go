package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"standard address", "user@example.com", "u***@*******.com"},
		{"single char username", "u@example.com", "u@*******.com"},
		{"subdomain masked", "user@mail.example.com", "u***@****.*******.com"},
		{"missing at sign", "not-an-email", "[invalid-email]"},
		{"multiple at signs", "a@b@c.com", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.email))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("code=123456"))
	assert.True(t, SanitizeQueryString("email=user@example.com&limit=5"))
	assert.True(t, SanitizeQueryString("TOKEN=abc"))
	assert.False(t, SanitizeQueryString("active=true&limit=10"))
	assert.False(t, SanitizeQueryString(""))
}
