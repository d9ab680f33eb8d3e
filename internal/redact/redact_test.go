package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStableAndShort(t *testing.T) {
	a := Fingerprint("some-license-key")
	b := Fingerprint("some-license-key")

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotContains(t, a, "license")
}

func TestFingerprintDiffersPerKey(t *testing.T) {
	assert.NotEqual(t, Fingerprint("key-a"), Fingerprint("key-b"))
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a***e@example.com"},
		{"ab@example.com", "a*@example.com"},
		{"a@example.com", "a*@example.com"},
		{"", ""},
		{"not-an-email", "***"},
		{"@example.com", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.in))
		})
	}
}
