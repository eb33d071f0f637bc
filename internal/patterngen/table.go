package patterngen

import (
	"regexp"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

type entry struct {
	keywords    []string
	patterns    []string
	category    rules.Category
	description string
	matchers    []*regexp.Regexp
}

var table = []entry{
	{
		keywords:    []string{"ignore instructions", "ignore previous", "ignore prior", "override instructions", "disregard instructions"},
		patterns:    []string{`(?:ignore|disregard|forget)\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|rules|directions)`, `override\s+(?:your\s+)?(?:instructions|programming|rules)`},
		category:    rules.CategoryPromptInjection,
		description: "Instruction override attempt",
	},
	{
		keywords:    []string{"system prompt", "hidden prompt", "initial instructions"},
		patterns:    []string{`(?:reveal|show|print|repeat|output)\s+(?:your\s+|the\s+)?(?:system|hidden|initial)\s+(?:prompt|instructions)`},
		category:    rules.CategoryPromptInjection,
		description: "System prompt extraction",
	},
	{
		keywords:    []string{"jailbreak", "dan", "do anything now", "developer mode"},
		patterns:    []string{`\bDAN\b`, `do\s+anything\s+now`, `(?:enable|enter|activate)\s+developer\s+mode`},
		category:    rules.CategoryJailbreak,
		description: "Known jailbreak persona",
	},
	{
		keywords:    []string{"roleplay", "role play", "pretend", "act as"},
		patterns:    []string{`pretend\s+(?:to\s+be|you\s+are)`, `(?:act|behave)\s+as\s+(?:if\s+you\s+(?:are|were)\s+)?(?:an?\s+)?(?:unrestricted|unfiltered|evil)`},
		category:    rules.CategoryJailbreak,
		description: "Role-play restriction bypass",
	},
	{
		keywords:    []string{"credit card", "card number", "payment card"},
		patterns:    []string{`\b(?:4\d{3}|5[1-5]\d{2}|3[47]\d{2})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{1,4}\b`},
		category:    rules.CategoryDataExfiltration,
		description: "Payment card number",
	},
	{
		keywords:    []string{"ssn", "social security"},
		patterns:    []string{`\b\d{3}-\d{2}-\d{4}\b`},
		category:    rules.CategoryDataExfiltration,
		description: "US social security number",
	},
	{
		keywords:    []string{"email address", "email addresses"},
		patterns:    []string{`\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`},
		category:    rules.CategoryDataExfiltration,
		description: "Email address",
	},
	{
		keywords:    []string{"phone number", "phone numbers"},
		patterns:    []string{`\b\d{3}[-\s.]?\d{3}[-\s.]?\d{4}\b`},
		category:    rules.CategoryDataExfiltration,
		description: "Phone number",
	},
	{
		keywords:    []string{"api key", "api keys", "secret key", "access token", "aws key"},
		patterns:    []string{`\b(?:sk|pk|rk)[-_](?:live|test|proj)?[-_]?[a-z0-9]{16,}\b`, `\bAKIA[0-9A-Z]{16}\b`, `\bgh[pousr]_[A-Za-z0-9]{36}\b`},
		category:    rules.CategoryDataExfiltration,
		description: "API key or access token",
	},
	{
		keywords:    []string{"password", "passwords", "credential", "credentials"},
		patterns:    []string{`\b(?:password|passwd|pwd)\s*[:=]\s*\S+`},
		category:    rules.CategoryDataExfiltration,
		description: "Inline credential",
	},
	{
		keywords:    []string{"sql injection", "drop table"},
		patterns:    []string{`\b(?:union\s+select|drop\s+table|or\s+1\s*=\s*1)\b`},
		category:    rules.CategoryPromptInjection,
		description: "SQL injection payload",
	},
	{
		keywords:    []string{"shell command", "command injection", "reverse shell"},
		patterns:    []string{`(?:;|&&|\|)\s*(?:rm|curl|wget|bash|sh|nc)\b`, `\$\([^)]*\)`},
		category:    rules.CategoryPromptInjection,
		description: "Shell command injection",
	},
	{
		keywords:    []string{"base64", "encoded payload", "obfuscated"},
		patterns:    []string{`[A-Za-z0-9+/]{40,}={0,2}`},
		category:    rules.CategoryPromptInjection,
		description: "Long encoded blob",
	},
	{
		keywords:    []string{"exfiltrate", "exfiltration", "send data to", "upload to"},
		patterns:    []string{`(?:send|post|upload|forward)\s+(?:all\s+)?(?:the\s+)?(?:data|files|conversation|contents)\s+to\s+\S+`, `https?://[^\s]+[?&][a-z_]+=`},
		category:    rules.CategoryDataExfiltration,
		description: "Data exfiltration instruction",
	},
	{
		keywords:    []string{"weapon", "weapons", "bomb", "explosive", "explosives"},
		patterns:    []string{`(?:how\s+to\s+)?(?:make|build|assemble)\s+(?:a\s+)?(?:bomb|explosive|weapon)`},
		category:    rules.CategoryContentSafety,
		description: "Weapons instructions",
	},
	{
		keywords:    []string{"self-harm", "self harm", "suicide"},
		patterns:    []string{`\b(?:kill\s+myself|end\s+my\s+life|methods?\s+of\s+suicide)\b`},
		category:    rules.CategoryContentSafety,
		description: "Self-harm content",
	},
}

func init() {
	for i := range table {
		e := &table[i]
		e.matchers = make([]*regexp.Regexp, len(e.keywords))
		for j, kw := range e.keywords {
			e.matchers[j] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
}
