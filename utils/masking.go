package utils

import (
	"regexp"
	"strings"
	"sync"
)

// #nosec G101 -- False positive - no hardcoded credentials.
const CredentialsInUrlRegexp = `(?:http|https|git)://.+@`

var credentialsInUrlPattern = regexp.MustCompile(CredentialsInUrlRegexp)

// RemoveUrlCredentials strips embedded credentials from URLs in the line.
func RemoveUrlCredentials(line string) string {
	return credentialsInUrlPattern.ReplaceAllStringFunc(line, func(match string) string {
		splitResult := strings.Split(match, "//")
		return splitResult[0] + "//***@"
	})
}

// SecretMasker collects secret values and scrubs them from any text that is
// about to be logged or written to disk. Every credential accepted by the
// pipeline must be registered here before it is used anywhere.
type SecretMasker struct {
	mu      sync.Mutex
	secrets []string
	// OnRegister is invoked for each newly registered secret, letting the CI
	// environment register the value with its own masking facility.
	OnRegister func(secret string)
}

func NewSecretMasker() *SecretMasker {
	return &SecretMasker{}
}

// Register records a secret value for masking. Empty values are ignored.
func (m *SecretMasker) Register(secret string) {
	if secret == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.secrets {
		if existing == secret {
			return
		}
	}
	m.secrets = append(m.secrets, secret)
	if m.OnRegister != nil {
		m.OnRegister(secret)
	}
}

// Mask replaces every registered secret in the text with asterisks,
// and strips credentials embedded in URLs.
func (m *SecretMasker) Mask(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range m.secrets {
		text = strings.ReplaceAll(text, secret, "***")
	}
	return RemoveUrlCredentials(text)
}
