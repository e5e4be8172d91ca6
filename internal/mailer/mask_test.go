package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "two char local part passes through",
			input: "ab@example.com",
			want:  "ab@example.com",
		},
		{
			name:  "single char local part passes through",
			input: "a@example.com",
			want:  "a@example.com",
		},
		{
			name:  "standard address",
			input: "abcdef@example.com",
			want:  "ab****@example.com",
		},
		{
			name:  "three char local part",
			input: "abc@example.com",
			want:  "ab*@example.com",
		},
		{
			name:  "long local part keeps original length",
			input: "longusername@domain.co.uk",
			want:  "lo**********@domain.co.uk",
		},
		{
			name:  "no at sign",
			input: "noatsign",
			want:  "[INVALID_EMAIL]",
		},
		{
			name:  "empty string",
			input: "",
			want:  "[INVALID_EMAIL]",
		},
		{
			name:  "trailing at with no domain",
			input: "user@",
			want:  "[INVALID_EMAIL]",
		},
		{
			name:  "empty local part",
			input: "@domain.com",
			want:  "@domain.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.input))
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{
		"password", "PASSWORD", "user_password",
		"token", "accessToken", "refresh_token",
		"secret", "clientSecret",
		"key", "api_key", "ApiKey",
		"auth", "authorization",
		"credential", "credentials",
		"private", "privateNote",
	}
	for _, k := range sensitive {
		assert.True(t, IsSensitiveKey(k), "expected %q to be sensitive", k)
	}

	benign := []string{"note", "round_id", "subject", "recipient_count", "template"}
	for _, k := range benign {
		assert.False(t, IsSensitiveKey(k), "expected %q to be benign", k)
	}
}

func TestMaskMetadata(t *testing.T) {
	in := map[string]any{
		"password": "x",
		"note":     "y",
		"api_key":  "abc123",
		"count":    7,
	}

	out := MaskMetadata(in)

	assert.Equal(t, map[string]any{
		"password": "[MASKED]",
		"note":     "y",
		"api_key":  "[MASKED]",
		"count":    7,
	}, out)

	// Input is not mutated.
	assert.Equal(t, "x", in["password"])
}

func TestMaskMetadataNil(t *testing.T) {
	assert.Nil(t, MaskMetadata(nil))
}
