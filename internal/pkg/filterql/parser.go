package filterql

import (
	"strings"
)

// Parser builds a predicate tree from a token sequence. It is driven by the
// precedence table: AND and OR join exactly two comparison terms, NOT
// negates one, and deeper nesting goes through parentheses only.
type Parser struct {
	tokens []Token
	pos    int
	// rawPatterns disables escaping of $contains/$starts/$ends text.
	rawPatterns bool
}

// Parse parses a token sequence produced by Tokenize.
func Parse(tokens []Token) (Node, error) {
	return newParser(tokens, false).parseFilter()
}

func newParser(tokens []Token, rawPatterns bool) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != EOF {
		end := 0
		if len(tokens) > 0 {
			last := tokens[len(tokens)-1]
			end = last.Pos + len(last.Lexeme)
		}
		tokens = append(tokens, Token{Kind: EOF, Pos: end})
	}
	return &Parser{tokens: tokens, rawPatterns: rawPatterns}
}

func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *Parser) fail(expected ...Kind) error {
	tok := p.current()
	return &SyntaxError{Pos: tok.Pos, Expected: expected, Found: tok}
}

// parseFilter handles: filter := expr EOF
func (p *Parser) parseFilter() (Node, error) {
	return p.parseExpr(EOF)
}

// parseExpr handles the logical level. closing is the token that must follow
// the expression: EOF at top level, RPAREN inside parentheses.
func (p *Parser) parseExpr(closing Kind) (Node, error) {
	if op := lookup(p.current().Kind); op.class == classNegation {
		p.advance()
		operand, err := p.parseComp()
		if err != nil {
			return nil, err
		}
		return p.expectClosing(NewNot(operand), closing, closing)
	}

	left, err := p.parseComp()
	if err != nil {
		return nil, err
	}

	op := lookup(p.current().Kind)
	if op.class != classBinary {
		return p.expectClosing(left, closing, append(kindsOf(classBinary), closing)...)
	}
	p.advance()

	right, err := p.parseComp()
	if err != nil {
		return nil, err
	}

	node := Logical{Op: op.logical, Operands: []Node{left, right}}
	return p.expectClosing(node, closing, closing)
}

func (p *Parser) expectClosing(n Node, closing Kind, expected ...Kind) (Node, error) {
	if p.current().Kind != closing {
		return nil, p.fail(expected...)
	}
	if closing != EOF {
		p.advance()
	}
	return n, nil
}

// parseComp handles: comp := field OP value | EXISTS field | ( expr )
func (p *Parser) parseComp() (Node, error) {
	tok := p.current()

	if tok.Kind == LPAREN {
		p.advance()
		return p.parseExpr(RPAREN)
	}

	if lookup(tok.Kind).class == classExists {
		p.advance()
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		return NewExistence(field), nil
	}

	if tok.Kind != WORD {
		return nil, p.fail(LPAREN, EXISTS, WORD)
	}

	field, err := p.parseField()
	if err != nil {
		return nil, err
	}

	op := lookup(p.current().Kind)
	if op.class != classCompare {
		return nil, p.fail(append([]Kind{DOT}, kindsOf(classCompare)...)...)
	}
	p.advance()

	valTok := p.current()
	if !isValueKind(valTok.Kind) {
		return nil, p.fail(valueKinds...)
	}
	p.advance()
	if valTok.Kind == WORD {
		valTok = p.joinDotted(valTok)
	}

	value := Coerce(valTok)
	if op.pattern != nil {
		value = String(op.pattern(valueText(valTok), p.rawPatterns))
	}

	return NewComparison(field, op.compare, value), nil
}

// parseField handles: field := WORD | WORD DOT field
func (p *Parser) parseField() (string, error) {
	tok := p.current()
	if tok.Kind != WORD {
		return "", p.fail(WORD)
	}
	p.advance()

	if p.current().Kind != DOT {
		return tok.Lexeme, nil
	}
	p.advance()

	rest, err := p.parseField()
	if err != nil {
		return "", err
	}
	return tok.Lexeme + "." + rest, nil
}

// joinDotted extends a bare value with the DOT, WORD and NUMBER tokens that
// follow it without a gap, so john@x.com stays one value.
func (p *Parser) joinDotted(tok Token) Token {
	for {
		next := p.current()
		if next.Pos != tok.Pos+len(tok.Lexeme) {
			return tok
		}
		switch next.Kind {
		case DOT, WORD, NUMBER:
			tok.Lexeme += next.Lexeme
			p.advance()
		default:
			return tok
		}
	}
}

// valueText is the user text of a value token as the legacy substring
// operators see it.
func valueText(tok Token) string {
	if tok.Kind == LITERAL {
		return tok.Lexeme[1 : len(tok.Lexeme)-1]
	}
	return strings.TrimSpace(tok.Lexeme)
}
