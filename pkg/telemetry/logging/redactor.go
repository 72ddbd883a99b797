package logging

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/saturn/pkg/config"
)

// Redactor strips credential-shaped values from log fields. The router
// holds the shared worker auth token in memory for the lifetime of the
// daemon; nothing that passes through a logger may carry it to disk.
type Redactor struct {
	patterns map[string]*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAuthToken   = "auth_token"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
	PatternPrivateKey  = "private_key"
)

// NewRedactor creates a new Redactor with default and custom patterns.
func NewRedactor(customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{
		patterns: make(map[string]*redactPattern),
	}

	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			// Invalid patterns are rejected by config validation; skip
			// anything that slips through a hand-built Config.
			continue
		}
		r.patterns[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	return r
}

// addDefaultPatterns adds the built-in secret redaction patterns.
func (r *Redactor) addDefaultPatterns() {
	patterns := map[string]struct {
		regex       string
		replacement string
	}{
		// token=..., auth_token: ... assignments
		PatternAuthToken: {
			regex:       `(?i)((?:auth[-_]?)?token[=:]\s*)[^\s"']+`,
			replacement: "$1***",
		},

		// Bearer headers
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},

		// Generic password fields
		PatternPassword: {
			regex:       `(?i)(password|passwd|pwd)[=:]\s*[^\s"']+`,
			replacement: "$1: ***",
		},

		// PEM private key blocks
		PatternPrivateKey: {
			regex:       `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
			replacement: "-----PRIVATE KEY REDACTED-----",
		},
	}

	for name, p := range patterns {
		r.patterns[name] = &redactPattern{
			name:        name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		}
	}
}

// RedactString redacts secrets from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}

	return redacted
}

// RedactArgs redacts secrets from variadic log arguments.
// Args are in the form: key1, value1, key2, value2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		// Values under a sensitive key are replaced outright.
		if key, ok := redacted[i-1].(string); ok && isSensitiveKey(key) {
			redacted[i] = redactValue(redacted[i])
			continue
		}

		// Other string values still get pattern scrubbing.
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

// sensitiveKeySubstrings marks a log key as credential-bearing.
var sensitiveKeySubstrings = []string{
	"token",
	"secret",
	"password", "passwd", "pwd",
	"auth",
	"api_key", "apikey",
	"private_key", "privatekey",
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeySubstrings {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactValue replaces a sensitive value completely. Unlike value-pattern
// scrubbing, nothing of the original survives: a token under a "token"
// key must not leak even a prefix.
func redactValue(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" {
			return ""
		}
		return "***"
	case fmt.Stringer:
		return "***"
	default:
		return "***"
	}
}
