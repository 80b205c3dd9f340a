package secretdetect

import (
	"regexp"
)

// Pattern is a named credential format.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the credential formats most likely to be typed
// or pasted into a chat.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "Google API Key", Regex: regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
		{Name: "Google OAuth Token", Regex: regexp.MustCompile(`ya29\.[0-9A-Za-z\-_]{20,}`)},
		{Name: "AWS Access Key ID", Regex: regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`)},
		{Name: "OpenAI Project Key", Regex: regexp.MustCompile(`sk-proj-[a-zA-Z0-9_\-]{32,}`)},
		{Name: "Anthropic API Key", Regex: regexp.MustCompile(`sk-ant-api03-[a-zA-Z0-9_\-]{20,}`)},
		{Name: "OpenAI API Key", Regex: regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)},
		{Name: "GitHub Token", Regex: regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`)},
		{Name: "Slack Token", Regex: regexp.MustCompile(`xox[bp]-[0-9]{10,12}-[0-9A-Za-z\-]{20,}`)},
		{Name: "Bearer Token", Regex: regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-_.=]{20,}`)},
		{Name: "Private Key", Regex: regexp.MustCompile(`-----BEGIN ((RSA|OPENSSH|EC|PGP) )?PRIVATE KEY( BLOCK)?-----`)},
	}
}
