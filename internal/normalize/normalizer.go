// Package normalize canonicalizes raw merchant strings so that different
// renderings of the same merchant group together.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unknown is returned when nothing meaningful survives normalization.
const Unknown = "UNKNOWN"

const (
	defaultMaxTokens = 4
	defaultMaxLength = 30
	minDigitRun      = 3
)

// Boilerplate dropped wherever it appears.
var defaultNoise = []string{
	"RECURRING", "AUTOPAY", "PURCHASE", "PMT", "PAYMENT", "BILLPAY",
	"POS", "DEBIT", "CHECKCARD", "WWW", "COM", "HTTPS", "HTTP",
	"INC", "LLC", "LTD", "CORP", "CO",
}

// Payment network and terminal prefixes dropped only at the start.
var defaultPrefixes = []string{
	"CARD", "VISA", "MC", "MASTERCARD", "AMEX", "DISCOVER", "ACH", "SQ", "TST",
	"PAYPAL", "PP", "ONLINE", "PREAUTHORIZED", "ELECTRONIC", "DDA", "EFT",
	"SP", "APLPAY",
}

// Config tunes the normalizer.
type Config struct {
	Noise     []string
	Prefixes  []string
	MaxTokens int
	MaxLength int
}

// DefaultConfig returns the built-in boilerplate vocabulary.
func DefaultConfig() Config {
	return Config{
		Noise:     append([]string(nil), defaultNoise...),
		Prefixes:  append([]string(nil), defaultPrefixes...),
		MaxTokens: defaultMaxTokens,
		MaxLength: defaultMaxLength,
	}
}

// Normalizer is a pure merchant canonicalizer. It is safe for concurrent use.
type Normalizer struct {
	noise     map[string]struct{}
	prefixes  map[string]struct{}
	maxTokens int
	maxLength int
}

// New builds a normalizer from cfg.
func New(cfg Config) *Normalizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	n := &Normalizer{
		noise:     make(map[string]struct{}, len(cfg.Noise)),
		prefixes:  make(map[string]struct{}, len(cfg.Prefixes)),
		maxTokens: cfg.MaxTokens,
		maxLength: cfg.MaxLength,
	}
	for _, tok := range cfg.Noise {
		n.noise[strings.ToUpper(tok)] = struct{}{}
	}
	for _, tok := range cfg.Prefixes {
		n.prefixes[strings.ToUpper(tok)] = struct{}{}
	}
	return n
}

var defaultNormalizer = New(DefaultConfig())

// Merchant normalizes raw with the default vocabulary.
func Merchant(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the canonical merchant for raw. Normalize(Normalize(x))
// always equals Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	out := n.pass(fold(raw))
	// Truncation can expose trailing digits or noise, so iterate to a fixed point.
	for range len(out) + 1 {
		next := n.pass(out)
		if next == out {
			break
		}
		out = next
	}
	if out == "" {
		return Unknown
	}
	return out
}

// fold strips diacritics and uppercases. Compatibility decomposition runs
// before and after the case mapping: NFKD can yield lowercase letters
// (ª, ㎏) and uppercasing can yield combining marks (ǰ). Casers and
// transformers are stateful so each call builds its own.
func fold(s string) string {
	upper := cases.Upper(language.Und).String(decompose(s))
	return decompose(upper)
}

func decompose(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return stripped
}

func (n *Normalizer) pass(s string) string {
	tokens := tokenize(s)

	kept := tokens[:0]
	for _, tok := range tokens {
		tok = stripReference(tok)
		if tok == "" {
			continue
		}
		if _, ok := n.noise[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}

	for len(kept) > 1 {
		if _, ok := n.prefixes[kept[0]]; !ok {
			break
		}
		kept = kept[1:]
	}

	if len(kept) > n.maxTokens {
		kept = kept[:n.maxTokens]
	}

	return n.truncate(kept)
}

// tokenize splits on anything that is not a letter, digit or ampersand.
// Apostrophes are removed so "MCDONALD'S" stays one token.
func tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// stripReference removes trailing store/reference numbers and drops tokens
// that are mostly reference codes.
func stripReference(tok string) string {
	rs := []rune(tok)
	end := len(rs)
	for end > 0 && unicode.IsDigit(rs[end-1]) {
		end--
	}
	if len(rs)-end >= minDigitRun {
		rs = rs[:end]
	}

	digits := 0
	for _, r := range rs {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits >= minDigitRun {
		return ""
	}
	if len(rs) == 1 && rs[0] == '&' {
		return ""
	}
	return string(rs)
}

func (n *Normalizer) truncate(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	first := []rune(tokens[0])
	if len(first) >= n.maxLength {
		return strings.TrimSpace(string(first[:n.maxLength]))
	}

	var b strings.Builder
	b.WriteString(tokens[0])
	for _, tok := range tokens[1:] {
		if len([]rune(b.String()))+1+len([]rune(tok)) > n.maxLength {
			break
		}
		b.WriteByte(' ')
		b.WriteString(tok)
	}
	return b.String()
}
