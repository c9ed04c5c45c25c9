package secrets

import "regexp"

// Pattern defines a secret detection pattern.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// Provider and gateway keys come first: a prompt carrying one would hand a
// live credential to the upstream model.
var defaultPatterns = []Pattern{
	{Name: "Quieter API Key", Regex: regexp.MustCompile(`\bqtr_[A-Za-z0-9_-]{32}`)},
	{Name: "Anthropic API Key", Regex: regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{Name: "OpenAI API Key", Regex: regexp.MustCompile(`sk-(?:proj-[A-Za-z0-9_-]{20,}|[A-Za-z0-9]{32,})`)},
	{Name: "Google API Key", Regex: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{Name: "AWS Access Key", Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{Name: "GCP Service Account Key", Regex: regexp.MustCompile(`"private_key":\s*"-----BEGIN`)},
	{Name: "GitHub Token", Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{Name: "Slack Token", Regex: regexp.MustCompile(`xox[abprs]-[A-Za-z0-9-]{10,}`)},
	{Name: "Stripe Secret Key", Regex: regexp.MustCompile(`[sr]k_live_[A-Za-z0-9]{24,}`)},
	{Name: "Private Key", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{Name: "Connection String", Regex: regexp.MustCompile(`(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s]+`)},
	{Name: "JWT Token", Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
}

// DefaultPatterns returns the built-in secret detection patterns.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}
