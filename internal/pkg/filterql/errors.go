package filterql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilter is wrapped by every error the compiler returns.
var ErrInvalidFilter = errors.New("filterql: invalid filter")

// LexError reports input that no lexical rule accepts.
type LexError struct {
	Pos int
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%v: %s at position %d", ErrInvalidFilter, e.Msg, e.Pos)
}

func (e *LexError) Unwrap() error { return ErrInvalidFilter }

// SyntaxError reports a token stream that does not match the grammar.
type SyntaxError struct {
	Pos      int
	Expected []Kind
	Found    Token
}

func (e *SyntaxError) Error() string {
	names := make([]string, len(e.Expected))
	for i, k := range e.Expected {
		names[i] = k.String()
	}
	return fmt.Sprintf("%v: expected %s but found %s at position %d",
		ErrInvalidFilter, strings.Join(names, " or "), e.Found, e.Pos)
}

func (e *SyntaxError) Unwrap() error { return ErrInvalidFilter }

// Position returns the byte offset carried by a compiler error, if any.
func Position(err error) (int, bool) {
	var lexErr *LexError
	if errors.As(err, &lexErr) {
		return lexErr.Pos, true
	}
	var synErr *SyntaxError
	if errors.As(err, &synErr) {
		return synErr.Pos, true
	}
	return 0, false
}
