package classify

import (
	"strings"

	"github.com/gostash/tierstore/internal/core"
)

// DefaultCredentialKey is the key holding the auth token.
const DefaultCredentialKey = "auth_token"

// defaultSensitivePatterns are the substrings that mark a key as
// confidential when no deployment-specific rules are provided.
var defaultSensitivePatterns = []string{
	"token",
	"auth",
	"password",
	"secret",
	"credential",
}

// Rules configure key classification. The pattern set is injectable
// configuration rather than a hardcoded literal, so classification
// policy is auditable per deployment.
type Rules struct {
	// CredentialKey is the exact key name holding the auth token.
	CredentialKey string

	// SensitivePatterns are case-insensitive substrings that mark a
	// key as sensitive.
	SensitivePatterns []string
}

// DefaultRules returns the default classification rules.
func DefaultRules() Rules {
	return Rules{
		CredentialKey:     DefaultCredentialKey,
		SensitivePatterns: defaultSensitivePatterns,
	}
}

// Classifier maps key names to their security classification.
// Classification is a pure function of the key name: deterministic,
// O(1), stateless, and it never fails.
type Classifier struct {
	credentialKey string
	patterns      []string
}

// New creates a classifier from the given rules. Zero-value fields
// fall back to the defaults.
func New(rules Rules) *Classifier {
	if rules.CredentialKey == "" {
		rules.CredentialKey = DefaultCredentialKey
	}
	if len(rules.SensitivePatterns) == 0 {
		rules.SensitivePatterns = defaultSensitivePatterns
	}

	patterns := make([]string, len(rules.SensitivePatterns))
	for i, p := range rules.SensitivePatterns {
		patterns[i] = strings.ToLower(p)
	}

	return &Classifier{
		credentialKey: rules.CredentialKey,
		patterns:      patterns,
	}
}

// Classify returns the security classification for a key name.
func (c *Classifier) Classify(key string) core.KeyClass {
	if key == c.credentialKey {
		return core.ClassCredential
	}

	lower := strings.ToLower(key)
	for _, pattern := range c.patterns {
		if strings.Contains(lower, pattern) {
			return core.ClassSensitive
		}
	}

	return core.ClassOrdinary
}

// CredentialKey returns the configured credential key name.
func (c *Classifier) CredentialKey() string {
	return c.credentialKey
}

// Patterns returns the active sensitive patterns.
func (c *Classifier) Patterns() []string {
	out := make([]string, len(c.patterns))
	copy(out, c.patterns)
	return out
}
