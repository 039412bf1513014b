package secrets

// DefaultRules covers the credentials most likely to end up in a prompt:
// LLM provider keys, VCS tokens, private keys and key=value assignments.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API Key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{20,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "github-token",
			Description: "GitHub Token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`,
			Severity:    "high",
		},
		{
			ID:          "github-fine-grained",
			Description: "GitHub Fine-grained Personal Access Token",
			Pattern:     `github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
			Severity:    "high",
		},
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity:    "high",
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API Key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api"},
			Severity:    "high",
		},
		{
			ID:          "generic-secret",
			Description: "Password or secret assignment",
			Pattern:     `(?i)(?:secret|password|passwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"secret", "passw"},
			Severity:    "medium",
		},
		{
			ID:          "database-url",
			Description: "Connection URL with credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|nats)://[^:\s/]+:[^@\s]+@[^\s]+`,
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
			Severity:    "medium",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
	}
}
