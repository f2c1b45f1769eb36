package classify

import (
	"testing"

	"github.com/gostash/tierstore/internal/core"
)

func TestClassifyDefaults(t *testing.T) {
	c := New(DefaultRules())

	tests := []struct {
		key  string
		want core.KeyClass
	}{
		{"auth_token", core.ClassCredential},
		{"theme", core.ClassOrdinary},
		{"profile", core.ClassOrdinary},
		{"last_opened_screen", core.ClassOrdinary},
		{"refresh_token", core.ClassSensitive},
		{"user_password", core.ClassSensitive},
		{"api_secret", core.ClassSensitive},
		{"auth_user_data", core.ClassSensitive},
		{"oauth_state", core.ClassSensitive},
		{"db_credentials", core.ClassSensitive},
		{"SECRET_value", core.ClassSensitive},
		{"TokenCache", core.ClassSensitive},
		{"", core.ClassOrdinary},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.key); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New(DefaultRules())
	for i := 0; i < 100; i++ {
		if got := c.Classify("refresh_token"); got != core.ClassSensitive {
			t.Fatalf("classification changed between calls: %v", got)
		}
	}
}

func TestClassifyCustomRules(t *testing.T) {
	c := New(Rules{
		CredentialKey:     "master_key",
		SensitivePatterns: []string{"private"},
	})

	if got := c.Classify("master_key"); got != core.ClassCredential {
		t.Errorf("Classify(master_key) = %v, want credential", got)
	}
	if got := c.Classify("private_notes"); got != core.ClassSensitive {
		t.Errorf("Classify(private_notes) = %v, want sensitive", got)
	}
	// Default patterns must not apply once replaced.
	if got := c.Classify("user_password"); got != core.ClassOrdinary {
		t.Errorf("Classify(user_password) = %v, want ordinary", got)
	}
}

func TestClassifyZeroRulesFallBack(t *testing.T) {
	c := New(Rules{})
	if c.CredentialKey() != DefaultCredentialKey {
		t.Errorf("CredentialKey() = %q, want %q", c.CredentialKey(), DefaultCredentialKey)
	}
	if got := c.Classify("session_secret"); got != core.ClassSensitive {
		t.Errorf("Classify(session_secret) = %v, want sensitive", got)
	}
}
