package filterql

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rule is one entry of the ordered lexical rule list. The first rule whose
// pattern matches at the cursor wins, even if a later rule would match more.
type rule struct {
	kind Kind
	re   *regexp.Regexp
	skip bool
	// bounded rules only apply when the match is followed by end of input,
	// whitespace or ')'.
	bounded bool
	// valid rejects a match that has the right shape but no meaning.
	valid func(lexeme string) bool
}

func keyword(kind Kind, name string) rule {
	return rule{kind: kind, re: regexp.MustCompile(`^(?i)\$` + name + `\b`)}
}

// rules is built once and shared read-only by every Tokenize call.
var rules = []rule{
	{re: regexp.MustCompile(`^\s+`), skip: true},

	keyword(AND, "and"),
	keyword(OR, "or"),
	keyword(NOT, "not"),
	keyword(EQ, "eq"),
	keyword(NE, "ne"),
	keyword(LT, "lt"),
	keyword(LTE, "lte"),
	keyword(GT, "gt"),
	keyword(GTE, "gte"),
	keyword(EXISTS, "exists"),
	keyword(REGEX, "regex"),
	keyword(IN, "in"),
	keyword(NIN, "nin"),
	keyword(CONTAINS, "contains"),
	keyword(STARTS, "starts"),
	keyword(ENDS, "ends"),

	{kind: LPAREN, re: regexp.MustCompile(`^\(`)},
	{kind: RPAREN, re: regexp.MustCompile(`^\)`)},
	{kind: DOT, re: regexp.MustCompile(`^\.`)},

	{kind: BOOLEAN, re: regexp.MustCompile(`^(?i)(true|false)\b`), bounded: true},
	{
		kind:    DATETIME,
		re:      regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`),
		bounded: true,
		valid:   validLayout(time.RFC3339Nano),
	},
	{
		kind:    DATE,
		re:      regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
		bounded: true,
		valid:   validLayout(time.DateOnly),
	},
	{
		kind:    NUM_ARRAY,
		re:      regexp.MustCompile(`^-?\d+(\.\d+)?(,-?\d+(\.\d+)?)+`),
		bounded: true,
		valid:   finiteNumbers,
	},
	{kind: ARRAY, re: regexp.MustCompile(`^[^\s,()\x00-\x1f\x7f]+(,[^\s,()\x00-\x1f\x7f]+)+`), bounded: true},
	{kind: NUMBER, re: regexp.MustCompile(`^-?\d+(\.\d+)?`), bounded: true, valid: finiteNumbers},
	{kind: LITERAL, re: regexp.MustCompile(`^'[^']*'`)},
	{kind: LITERAL, re: regexp.MustCompile(`^"[^"]*"`)},

	// Fallback: bare field names and bare values. A trailing '%' is part of
	// the word and marks a wildcard.
	{kind: WORD, re: regexp.MustCompile(`^[^\s().\x00-\x1f\x7f]+`)},
}

func validLayout(layout string) func(string) bool {
	return func(s string) bool {
		_, err := time.Parse(layout, s)
		return err == nil
	}
}

// finiteNumbers rejects numbers that overflow float64.
func finiteNumbers(s string) bool {
	for _, p := range strings.Split(s, ",") {
		if _, err := strconv.ParseFloat(p, 64); err != nil {
			return false
		}
	}
	return true
}

// Tokenize converts text into a token sequence terminated by EOF.
func Tokenize(text string) ([]Token, error) {
	tokens := make([]Token, 0, 16)
	pos := 0

	for pos < len(text) {
		tok, n, err := next(text, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if tok.Kind == EOF {
			// skipped whitespace
			continue
		}
		tokens = append(tokens, tok)
	}

	return append(tokens, Token{Kind: EOF, Pos: len(text)}), nil
}

// next applies the rule list at pos and returns the matched token and the
// number of bytes consumed. Skipped input is reported as an EOF token.
func next(text string, pos int) (Token, int, error) {
	rest := text[pos:]
	for _, r := range rules {
		loc := r.re.FindStringIndex(rest)
		if loc == nil || loc[1] == 0 {
			continue
		}
		lexeme := rest[:loc[1]]
		if r.bounded && !atBoundary(rest, loc[1]) {
			continue
		}
		if r.skip {
			return Token{Kind: EOF}, len(lexeme), nil
		}
		if r.valid != nil && !r.valid(lexeme) {
			return Token{}, 0, &LexError{Pos: pos, Msg: "invalid " + r.kind.String() + " " + quote(lexeme)}
		}
		return Token{Kind: r.kind, Lexeme: lexeme, Pos: pos}, len(lexeme), nil
	}

	return Token{}, 0, &LexError{Pos: pos, Msg: "unexpected character " + quote(rest[:1])}
}

func atBoundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	switch s[i] {
	case ' ', '\t', '\n', '\r', '\f', '\v', ')':
		return true
	}
	return false
}
