package redact

import "strings"

// punctuation is the ASCII punctuation set stripped from both ends of a token.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Config holds the values that decide which words get redacted.
// It is never mutated after construction; MinConfidence is expected to be
// clamped to 0-100 by the caller.
type Config struct {
	Keyword       string
	CaseSensitive bool
	MinConfidence int
}

// Matches reports whether candidate equals the keyword once leading and
// trailing punctuation is removed. Case is folded unless CaseSensitive is set.
func (c Config) Matches(candidate string) bool {
	if candidate == "" {
		return false
	}
	sanitized := strings.Trim(candidate, punctuation)
	if sanitized == "" {
		return false
	}
	if c.CaseSensitive {
		return sanitized == c.Keyword
	}
	return strings.ToLower(sanitized) == strings.ToLower(c.Keyword)
}
