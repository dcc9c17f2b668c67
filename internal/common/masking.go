package common

import (
	"fmt"
	"regexp"
	"strings"
)

// MaskedValue replaces anything the masker decides is sensitive.
const MaskedValue = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "api_key")
	Regex       *regexp.Regexp // Regular expression to match sensitive data
	Replacement string         // Replacement string
	Keys        []string       // Keys (attribute or header names) masked outright, case-insensitive
}

// DefaultSensitivePatterns covers credentials that typically travel in request headers,
// query strings and request bodies.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "api_key",
		Regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"api_key", "apikey", "api-key", "x-api-key"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)((?:access[_-]?|auth[_-]?)?token)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"token", "access_token", "auth_token", "access-token", "auth-token", "x-auth-token"},
	},
	{
		Name:        "authorization",
		Regex:       regexp.MustCompile(`(?i)(Bearer|Basic|Digest)\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "${1} " + MaskedValue,
		Keys:        []string{"authorization", "proxy-authorization"},
	},
	{
		Name:        "cookie",
		Regex:       nil,
		Replacement: MaskedValue,
		Keys:        []string{"cookie", "set-cookie"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)((?:client[_-]?)?secret)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"secret", "client_secret", "client-secret", "secret_access_key"},
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return &Masker{patterns: DefaultSensitivePatterns, enabled: true}
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	return &Masker{patterns: patterns, enabled: true}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// AddPattern adds a pattern. A pattern with keys but no regex gets one built from its keys.
func (m *Masker) AddPattern(pattern SensitivePattern) {
	if pattern.Regex == nil && len(pattern.Keys) > 0 {
		quoted := make([]string, len(pattern.Keys))
		for i, k := range pattern.Keys {
			quoted[i] = regexp.QuoteMeta(k)
		}
		pattern.Regex = regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`, strings.Join(quoted, "|")))
		if pattern.Replacement == "" {
			pattern.Replacement = "${1}${2}" + MaskedValue
		}
	}
	m.patterns = append(m.patterns, pattern)
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}
	result := input
	for _, p := range m.patterns {
		if p.Regex == nil {
			continue
		}
		result = p.Regex.ReplaceAllString(result, p.Replacement)
	}
	return result
}

// IsSensitiveKey reports whether key is listed by any pattern.
func (m *Masker) IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, p := range m.patterns {
		for _, sk := range p.Keys {
			if k == sk {
				return true
			}
		}
	}
	return false
}

// MaskValue masks sensitive information based on key-value context
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.enabled {
		return value
	}
	if m.IsSensitiveKey(key) {
		return MaskedValue
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	return m.MaskString(s)
}

// MaskHeaders returns a copy of headers with sensitive values masked.
func (m *Masker) MaskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if !m.enabled {
			out[k] = v
			continue
		}
		if m.IsSensitiveKey(k) {
			out[k] = MaskedValue
			continue
		}
		out[k] = m.MaskString(v)
	}
	return out
}

// Global masker instance
var globalMasker = NewMasker()

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker {
	return globalMasker
}

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// MaskHeaders masks a header map using the global masker
func MaskHeaders(headers map[string]string) map[string]string {
	return globalMasker.MaskHeaders(headers)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}

// IsMaskingEnabled returns whether global masking is enabled
func IsMaskingEnabled() bool {
	return globalMasker.IsEnabled()
}
