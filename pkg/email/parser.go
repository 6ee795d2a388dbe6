package email

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Supported email types.
const (
	TypeBanamex  = "banamex"
	TypeHeyBanco = "heybanco"
)

// Parser extracts a TransactionEmail from a bank notification email.
// Parse keeps no state between calls.
type Parser interface {
	Parse(e Email) (*TransactionEmail, error)
}

// BuildParser returns the parser for emailType.
func BuildParser(emailType string) (Parser, error) {
	switch emailType {
	case TypeBanamex:
		return newBanamexParser(), nil
	case TypeHeyBanco:
		return newHeyBancoParser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEmailType, emailType)
	}
}

// fieldRule recognizes the label of one field among the text tokens.
type fieldRule struct {
	field string
	match func(token string) bool
	// inline rules read the value from the label token itself instead of
	// the token that follows it.
	inline  bool
	convert func(raw string) (string, error)
}

// labelParser scans the text tokens of an email and fills fields from the
// labels it recognizes.
type labelParser struct {
	name string
	// scope limits text collection to tokens following this start tag. Zero
	// collects every text token.
	scope atom.Atom
	rules []fieldRule
	// marker must appear in some token for the email to describe a purchase.
	marker string
}

func newBanamexParser() *labelParser {
	return &labelParser{
		name:   TypeBanamex,
		marker: "Retiro/Compra",
		rules: []fieldRule{
			{field: FieldConcept, match: contains("Establecimiento"), convert: identity},
			{field: FieldAmount, match: contains("$"), inline: true, convert: normalizeAmount},
			{field: FieldDate, match: contains("Fecha y hora"), convert: normalizeDate},
		},
	}
}

func newHeyBancoParser() *labelParser {
	return &labelParser{
		name:  TypeHeyBanco,
		scope: atom.H4,
		rules: []fieldRule{
			{field: FieldConcept, match: equals("Comercio en donde se hizo la compra"), convert: identity},
			{field: FieldAmount, match: equals("Monto de compra"), convert: normalizeAmount},
			{field: FieldDate, match: equals("Fecha y hora de la transacción"), convert: normalizeDate},
		},
	}
}

// Parse tokenizes the email and extracts concept, date and amount.
func (p *labelParser) Parse(e Email) (*TransactionEmail, error) {
	tokens, err := textTokens(strings.NewReader(e.Content), p.scope)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %s email %s: %w", p.name, e.UID, err)
	}

	values, err := p.extract(tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s email %s: %w", p.name, e.UID, err)
	}
	values[FieldEmailID] = e.UID

	return TransactionEmailFromMap(values)
}

type parseState int

const (
	awaitingLabel parseState = iota
	awaitingValue
)

// extract runs the label/value state machine over tokens. The first
// occurrence of each field wins.
func (p *labelParser) extract(tokens []string) (map[string]string, error) {
	values := map[string]string{}
	state := awaitingLabel
	var pending *fieldRule
	sawMarker := p.marker == ""

	for _, tok := range tokens {
		if state == awaitingValue {
			if _, done := values[pending.field]; !done {
				v, err := pending.convert(tok)
				if err != nil {
					return nil, err
				}
				values[pending.field] = v
			}
			state, pending = awaitingLabel, nil
			continue
		}

		if !sawMarker && strings.Contains(tok, p.marker) {
			sawMarker = true
			continue
		}

		for i := range p.rules {
			rule := &p.rules[i]
			if !rule.match(tok) {
				continue
			}
			if rule.inline {
				if _, done := values[rule.field]; !done {
					v, err := rule.convert(tok)
					if err != nil {
						return nil, err
					}
					values[rule.field] = v
				}
			} else {
				state, pending = awaitingValue, rule
			}
			break
		}
	}

	if !sawMarker {
		return nil, fmt.Errorf("%w: %q marker not found", ErrMissingField, p.marker)
	}
	for _, rule := range p.rules {
		if _, ok := values[rule.field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, rule.field)
		}
	}
	return values, nil
}

// textTokens returns the trimmed, non-empty text tokens of an HTML document.
// When scope is set only text whose closest preceding start tag is scope is
// kept.
func textTokens(r io.Reader, scope atom.Atom) ([]string, error) {
	z := html.NewTokenizer(r)
	var tokens []string
	var current atom.Atom

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return tokens, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			current = atom.Lookup(name)
		case html.TextToken:
			if scope != 0 && current != scope {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				tokens = append(tokens, text)
			}
		}
	}
}

func contains(label string) func(string) bool {
	return func(tok string) bool { return strings.Contains(tok, label) }
}

func equals(label string) func(string) bool {
	return func(tok string) bool { return tok == label }
}

func identity(raw string) (string, error) {
	return strings.TrimSpace(raw), nil
}

// normalizeAmount strips the currency symbol and thousands separators:
// "$1,234.50" and "Monto $ 1,234.50 MXN" both become "1234.50".
func normalizeAmount(raw string) (string, error) {
	s := raw
	if i := strings.Index(s, "$"); i >= 0 {
		s = s[i+1:]
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	amount := strings.ReplaceAll(fields[0], ",", "")
	if amount == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return amount, nil
}

// normalizeDate converts the date part of "DD/MM/YY hh:mm", "DD/MM/YYYY -
// hh:mm hrs" or "YYYY/MM/DD" to YYYY-MM-DD.
func normalizeDate(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	parts := strings.Split(fields[0], "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}

	var year, month, day string
	switch {
	case len(parts[0]) == 4:
		year, month, day = parts[0], parts[1], parts[2]
	case len(parts[2]) == 2:
		year, month, day = "20"+parts[2], parts[1], parts[0]
	default:
		year, month, day = parts[2], parts[1], parts[0]
	}

	date := fmt.Sprintf("%s-%s-%s", year, month, day)
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return date, nil
}
