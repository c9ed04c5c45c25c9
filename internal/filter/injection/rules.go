package injection

import "regexp"

// Rule categories.
const (
	CategoryInstructionBypass = "instruction_bypass"
	CategoryRoleOverride      = "role_override"
	CategoryEncodingTrick     = "encoding_trick"
	CategoryOutputSteering    = "output_steering"
	CategoryPromptLeak        = "prompt_leak"
	CategoryRedactionProbe    = "redaction_probe"
)

// Rule defines a prompt injection detection pattern. Severity is in [0, 1].
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Severity float64
	Category string
}

var defaultRules = []Rule{
	{"ignore_previous", regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`), 0.95, CategoryInstructionBypass},
	{"disregard_prior", regexp.MustCompile(`(?i)disregard\s+(all\s+)?prior\s+(instructions|context|rules)`), 0.95, CategoryInstructionBypass},
	{"jailbreak", regexp.MustCompile(`\bDAN\b|(?i:do\s+anything\s+now|jailbreak|unrestricted\s+mode)`), 0.9, CategoryRoleOverride},
	{"code_block_system", regexp.MustCompile("(?i)```system"), 0.9, CategoryRoleOverride},
	{"system_prefix", regexp.MustCompile(`(?im)^\s*system\s*:\s*`), 0.85, CategoryRoleOverride},
	{"developer_mode", regexp.MustCompile(`(?i)(developer|debug|admin|root)\s+mode\s+(enabled|activated|on)`), 0.85, CategoryRoleOverride},
	{"base64_instruction", regexp.MustCompile(`(?i)(decode|execute|follow)\s+(the\s+)?base64`), 0.85, CategoryEncodingTrick},
	{"new_instructions", regexp.MustCompile(`(?i)(new|updated|revised)\s+instructions?\s*:`), 0.8, CategoryInstructionBypass},
	{"system_prompt_leak", regexp.MustCompile(`(?i)(reveal|print|repeat|show)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions|hidden\s+instructions)`), 0.8, CategoryPromptLeak},
	// Asks the model to reconstruct what the scrubber removed.
	{"redaction_reversal", regexp.MustCompile(`(?i)(reveal|restore|undo|reverse|guess|reconstruct)\s+(the\s+)?(redacted|original|hidden)\s+(name|text|value|data|content)s?`), 0.8, CategoryRedactionProbe},
	{"response_prefix", regexp.MustCompile(`(?i)respond\s+with\s*:\s*(sure|absolutely|of course)`), 0.75, CategoryOutputSteering},
	{"you_are_now", regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`), 0.7, CategoryRoleOverride},
}

// DefaultRules returns the built-in injection detection rules.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
