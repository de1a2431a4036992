package rules

import "regexp"

// AWSAccessKeyID is the id of the cloud provider access key rule.
const AWSAccessKeyID = "aws-access-key"

// builtinPatterns returns the vendor-format rules in evaluation order.
// Earlier entries win when two rules cover the same span, so more specific
// formats come first (anthropic before the generic sk- prefix).
func builtinPatterns() []*Rule {
	return []*Rule{
		{
			ID:             "private-key",
			Kind:           KindPattern,
			Description:    "Private key block",
			ConfidenceBase: 100,
			Reason:         "private key header",
			Pattern:        regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`),
			Keywords:       []string{"private key"},
		},
		{
			ID:             AWSAccessKeyID,
			Kind:           KindPattern,
			Description:    "AWS access key id",
			ConfidenceBase: 95,
			Reason:         "AWS access key id format",
			Pattern:        regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|ASIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA)[A-Z0-9]{16,}\b`),
		},
		{
			ID:             "github-token",
			Kind:           KindPattern,
			Description:    "GitHub personal, OAuth, app or refresh token",
			ConfidenceBase: 95,
			Reason:         "GitHub token prefix",
			Pattern:        regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
			Keywords:       []string{"gh"},
		},
		{
			ID:             "github-fine-grained-token",
			Kind:           KindPattern,
			Description:    "GitHub fine-grained personal access token",
			ConfidenceBase: 95,
			Reason:         "GitHub fine-grained token prefix",
			Pattern:        regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}`),
			Keywords:       []string{"github_pat_"},
		},
		{
			ID:             "gitlab-token",
			Kind:           KindPattern,
			Description:    "GitLab personal access token",
			ConfidenceBase: 95,
			Reason:         "GitLab token prefix",
			Pattern:        regexp.MustCompile(`\bglpat-[A-Za-z0-9_\-]{20,}`),
			Keywords:       []string{"glpat-"},
		},
		{
			ID:             "slack-token",
			Kind:           KindPattern,
			Description:    "Slack token",
			ConfidenceBase: 90,
			Reason:         "Slack token prefix",
			Pattern:        regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`),
			Keywords:       []string{"xox"},
		},
		{
			ID:             "stripe-live-key",
			Kind:           KindPattern,
			Description:    "Stripe live secret or restricted key",
			ConfidenceBase: 95,
			Reason:         "Stripe live key prefix",
			Pattern:        regexp.MustCompile(`\b[rs]k_live_[A-Za-z0-9]{16,}`),
			Keywords:       []string{"k_live_"},
		},
		{
			ID:             "google-api-key",
			Kind:           KindPattern,
			Description:    "Google API key",
			ConfidenceBase: 90,
			Reason:         "Google API key prefix",
			Pattern:        regexp.MustCompile(`\bAIza[A-Za-z0-9_\-]{35}`),
			Keywords:       []string{"aiza"},
		},
		{
			ID:             "sendgrid-api-key",
			Kind:           KindPattern,
			Description:    "SendGrid API key",
			ConfidenceBase: 95,
			Reason:         "SendGrid key format",
			Pattern:        regexp.MustCompile(`\bSG\.[A-Za-z0-9_\-]{22}\.[A-Za-z0-9_\-]{43}`),
			Keywords:       []string{"sg."},
		},
		{
			ID:             "npm-token",
			Kind:           KindPattern,
			Description:    "npm access token",
			ConfidenceBase: 90,
			Reason:         "npm token prefix",
			Pattern:        regexp.MustCompile(`\bnpm_[A-Za-z0-9]{36}\b`),
			Keywords:       []string{"npm_"},
		},
		{
			ID:             "anthropic-api-key",
			Kind:           KindPattern,
			Description:    "Anthropic API key",
			ConfidenceBase: 95,
			Reason:         "Anthropic key prefix",
			Pattern:        regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{80,}`),
			Keywords:       []string{"sk-ant-"},
		},
		{
			ID:             "openai-api-key",
			Kind:           KindPattern,
			Description:    "OpenAI API key",
			ConfidenceBase: 90,
			Reason:         "OpenAI key prefix",
			Pattern:        regexp.MustCompile(`\bsk-(?:proj-|svcacct-)?[A-Za-z0-9_\-]{40,}`),
			Keywords:       []string{"sk-"},
			MinEntropy:     3.5,
		},
		{
			ID:             "bearer-token",
			Kind:           KindPattern,
			Description:    "Bearer token in an Authorization header",
			ConfidenceBase: 85,
			Reason:         "Authorization bearer header",
			Pattern:        regexp.MustCompile(`(?i)\bauthorization["']?\s*[:=]\s*["']?bearer\s+([A-Za-z0-9_\-\.=+/]{16,})`),
			SecretGroup:    1,
			Keywords:       []string{"bearer"},
		},
		{
			ID:             "connection-string",
			Kind:           KindPattern,
			Description:    "Connection string with embedded credentials",
			ConfidenceBase: 90,
			Reason:         "credentials embedded in connection URL",
			Pattern:        regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|rediss?|amqps?|mssql|sqlserver)://[^\s:/@"']+:([^\s@/"']+)@[^\s"']+`),
			SecretGroup:    1,
			Keywords:       []string{"://"},
		},
		{
			ID:             "jwt",
			Kind:           KindPattern,
			Description:    "JSON Web Token",
			ConfidenceBase: 80,
			Reason:         "JWT structure",
			Pattern:        regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]{10,}\.eyJ[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,}`),
			Keywords:       []string{"eyj"},
		},
	}
}
