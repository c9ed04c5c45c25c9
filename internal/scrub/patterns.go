package scrub

import "regexp"

// Category groups rules into a redaction phase.
type Category string

const (
	CategoryIdentity  Category = "identity"
	CategoryCrypto    Category = "crypto"
	CategoryFinancial Category = "financial"
	CategoryMedical   Category = "medical"
)

// Placeholders inserted in place of redacted content.
const (
	PlaceholderName          = "[redacted-name]"
	PlaceholderSSN           = "[redacted-ssn]"
	PlaceholderEmail         = "[redacted-email]"
	PlaceholderCryptoSecret  = "[redacted-crypto-secret]"
	PlaceholderETHAddress    = "[redacted-eth-address]"
	PlaceholderBTCAddress    = "[redacted-btc-address]"
	PlaceholderCard          = "[redacted-card]"
	PlaceholderAccountNumber = "[redacted-account-number]"
	PlaceholderICDCode       = "[redacted-icd-code]"
	PlaceholderDiagnosis     = "[redacted-diagnosis]"
)

// Rule defines a single redaction pattern. Replacement may reference
// capture groups using regexp.Expand syntax ("${1}").
type Rule struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Phase is an ordered group of rules for one category.
type Phase struct {
	Category Category
	Rules    []Rule
}

var (
	nameRegex    = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)
	ssnRegex     = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	emailRegex   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	secretRegex  = regexp.MustCompile(`(?i)\b(?:seed phrase|recovery phrase|mnemonic phrase|private key|wallet seed)\b`)
	ethRegex     = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	btcRegex     = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)
	cardRegex    = regexp.MustCompile(`\b(?:\d[ -]?){12,15}\d\b`)
	accountRegex = regexp.MustCompile(`\b\d{10,20}\b`)
	// ICD-10 chapters use every letter except U.
	icdRegex       = regexp.MustCompile(`\b[A-TV-Z]\d{2}(?:\.\d{1,2})?\b`)
	diagnosisRegex = regexp.MustCompile(`(?i)\b(diagnosis:)[^\r\n]*`)
)

// DefaultPhases returns the built-in phases in application order.
func DefaultPhases() []Phase {
	return []Phase{
		{
			Category: CategoryIdentity,
			Rules: []Rule{
				{Name: "person_name", Regex: nameRegex, Replacement: PlaceholderName},
				{Name: "ssn", Regex: ssnRegex, Replacement: PlaceholderSSN},
				{Name: "email", Regex: emailRegex, Replacement: PlaceholderEmail},
			},
		},
		{
			Category: CategoryCrypto,
			Rules: []Rule{
				{Name: "crypto_secret_phrase", Regex: secretRegex, Replacement: PlaceholderCryptoSecret},
				{Name: "eth_address", Regex: ethRegex, Replacement: PlaceholderETHAddress},
				{Name: "btc_address", Regex: btcRegex, Replacement: PlaceholderBTCAddress},
			},
		},
		{
			Category: CategoryFinancial,
			Rules: []Rule{
				{Name: "card_number", Regex: cardRegex, Replacement: PlaceholderCard},
				{Name: "account_number", Regex: accountRegex, Replacement: PlaceholderAccountNumber},
			},
		},
		{
			Category: CategoryMedical,
			Rules: []Rule{
				{Name: "icd_code", Regex: icdRegex, Replacement: PlaceholderICDCode},
				{Name: "diagnosis_line", Regex: diagnosisRegex, Replacement: "${1} " + PlaceholderDiagnosis},
			},
		},
	}
}
