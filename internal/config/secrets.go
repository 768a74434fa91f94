package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets is a read-only view over environment-sourced credentials. Values
// are never persisted and never logged unredacted.
type Secrets struct{}

// LoadDotenv pulls a .env file into the environment when one exists.
// Production deployments set real environment variables instead.
func LoadDotenv() {
	_ = godotenv.Load()
}

// NewSecrets returns the process secrets registry.
func NewSecrets() *Secrets { return &Secrets{} }

// APIKey resolves <VENUE>_API_KEY for a venue identifier.
func (s *Secrets) APIKey(venue string) (string, bool) {
	key := strings.ToUpper(venue) + "_API_KEY"
	v := os.Getenv(key)
	return v, v != ""
}

// OculusAuthToken is the proxy vendor auth token.
func (s *Secrets) OculusAuthToken() string { return os.Getenv("OCULUS_AUTH_TOKEN") }

// OculusOrderToken is the proxy vendor order token.
func (s *Secrets) OculusOrderToken() string { return os.Getenv("OCULUS_ORDER_TOKEN") }

// HasProxyCredentials reports whether the vendor client can be constructed.
func (s *Secrets) HasProxyCredentials() bool {
	return s.OculusAuthToken() != "" && s.OculusOrderToken() != ""
}

// Redactor scrubs credential-shaped values out of strings headed for logs
// or reports.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor builds a redactor covering the credential patterns this
// process handles: API keys, bearer headers, and vendor tokens.
func NewRedactor() *Redactor {
	raw := []string{
		`(?i)(api[_-]?key|token|secret|password)["'\s]*[:=]["'\s]*[^\s"',}]+`,
		`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
		`(?i)authorization["'\s]*[:=]["'\s]*[^\s"',}]+`,
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	}
	patterns := make([]*regexp.Regexp, len(raw))
	for i, p := range raw {
		patterns[i] = regexp.MustCompile(p)
	}
	return &Redactor{patterns: patterns}
}

// Sanitize replaces every credential-shaped substring with [REDACTED].
func (r *Redactor) Sanitize(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
