package filterql

// Kind represents the type of a lexical token.
type Kind int

const (
	EOF Kind = iota
	AND
	OR
	NOT
	EQ
	NE
	LT
	LTE
	GT
	GTE
	IN
	NIN
	EXISTS
	REGEX
	CONTAINS
	STARTS
	ENDS
	LPAREN
	RPAREN
	DOT
	WORD
	NUMBER
	LITERAL
	BOOLEAN
	DATE
	DATETIME
	ARRAY
	NUM_ARRAY
)

var kindNames = [...]string{
	EOF:       "EOF",
	AND:       "$and",
	OR:        "$or",
	NOT:       "$not",
	EQ:        "$eq",
	NE:        "$ne",
	LT:        "$lt",
	LTE:       "$lte",
	GT:        "$gt",
	GTE:       "$gte",
	IN:        "$in",
	NIN:       "$nin",
	EXISTS:    "$exists",
	REGEX:     "$regex",
	CONTAINS:  "$contains",
	STARTS:    "$starts",
	ENDS:      "$ends",
	LPAREN:    "'('",
	RPAREN:    "')'",
	DOT:       "'.'",
	WORD:      "WORD",
	NUMBER:    "NUMBER",
	LITERAL:   "LITERAL",
	BOOLEAN:   "BOOLEAN",
	DATE:      "DATE",
	DATETIME:  "DATETIME",
	ARRAY:     "ARRAY",
	NUM_ARRAY: "NUM_ARRAY",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Token represents a lexical token. Pos is the byte offset of the lexeme in
// the decoded input.
type Token struct {
	Kind   Kind
	Lexeme string
	Pos    int
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return t.Kind.String() + " " + quote(t.Lexeme)
}

func quote(s string) string {
	return "\"" + s + "\""
}

// valueKinds are the token kinds accepted in value position.
var valueKinds = []Kind{ARRAY, NUM_ARRAY, DATE, DATETIME, NUMBER, LITERAL, BOOLEAN, WORD}

func isValueKind(k Kind) bool {
	for _, v := range valueKinds {
		if v == k {
			return true
		}
	}
	return false
}
