package commands

import "strings"

// DefaultPrefixes are the prefixes recognized when no config overrides them.
var DefaultPrefixes = []string{"/", "!"}

// Parser detects whether a message's text starts with a configured command
// prefix.
type Parser struct {
	prefixes []string
}

// NewParser builds a Parser over the given prefixes (defaults applied if
// empty).
func NewParser(prefixes ...string) *Parser {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	return &Parser{prefixes: prefixes}
}

// Detect reports whether text begins with a command prefix and, if so,
// returns the text with the prefix stripped.
func (p *Parser) Detect(text string) (stripped string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range p.prefixes {
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		rest := trimmed[len(prefix):]
		if rest == "" {
			continue
		}
		first := rest[0]
		if (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') {
			return rest, true
		}
	}
	return "", false
}

// Tokenize splits stripped command text into whitespace-delimited tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}
