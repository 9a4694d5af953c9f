// Package filterql compiles the URL-carried filter language into a typed
// predicate tree.
//
// A filter such as
//
//	age $gt 5 $and (name $eq 'john' $or tags $in red,green)
//
// is percent-decoded once, split into tokens by an ordered first-match rule
// list, and parsed under a fixed precedence table. The resulting Node tree can
// be rendered as a Mongo-style query document (Render), printed back as
// filter text (Format) or evaluated against documents (Match).
//
// Compilation is pure. Rule lists and tables are built at init and shared
// by all goroutines without locking.
package filterql

import (
	"fmt"
	"net/url"
)

// ErrFilterTooLong is returned when the raw input exceeds Options.MaxLength.
var ErrFilterTooLong = fmt.Errorf("%w: filter too long", ErrInvalidFilter)

// Options tune a Compiler.
type Options struct {
	// MaxLength caps the raw input length in bytes. Zero means no limit.
	MaxLength int
	// RawPatterns makes $contains, $starts and $ends interpolate user text
	// into the pattern unescaped.
	RawPatterns bool
}

// Compiler compiles filters with fixed options. The zero value is ready to use.
type Compiler struct {
	opts Options
}

// NewCompiler creates a Compiler.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

var defaultCompiler = &Compiler{}

// Compile compiles input with default options. Empty input yields MatchAll.
func Compile(input string) (Node, error) {
	return defaultCompiler.Compile(input)
}

// CompileValue compiles v if it is a non-empty string and yields MatchAll
// for anything else, including nil.
func CompileValue(v any) (Node, error) {
	s, ok := v.(string)
	if !ok {
		return MatchAll{}, nil
	}
	return Compile(s)
}

// Compile percent-decodes input once, tokenizes it and parses the tokens.
func (c *Compiler) Compile(input string) (Node, error) {
	if input == "" {
		return MatchAll{}, nil
	}
	if c.opts.MaxLength > 0 && len(input) > c.opts.MaxLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFilterTooLong, len(input), c.opts.MaxLength)
	}

	text, err := Decode(input)
	if err != nil {
		return nil, err
	}

	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	return newParser(tokens, c.opts.RawPatterns).parseFilter()
}

// Decode percent-decodes s exactly once. '+' is kept as is.
func Decode(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", &LexError{Pos: badEscape(s), Msg: "invalid percent escape"}
	}
	return out, nil
}

func badEscape(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return i
		}
		i += 2
	}
	return len(s)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
