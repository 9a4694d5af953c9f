package filterql

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Empty(t *testing.T) {
	n, err := Compile("")
	require.NoError(t, err)
	assert.Equal(t, MatchAll{}, n)
	assert.Equal(t, map[string]any{}, Render(n))

	n, err = CompileValue(nil)
	require.NoError(t, err)
	assert.Equal(t, MatchAll{}, n)

	n, err = CompileValue(42)
	require.NoError(t, err)
	assert.Equal(t, MatchAll{}, n)

	// A missing query parameter reads as the empty string.
	n, err = Compile(url.Values{}.Get("$filter"))
	require.NoError(t, err)
	assert.Equal(t, MatchAll{}, n)
}

func TestCompile_Render(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "greater than",
			input: "age $gt 5",
			want:  map[string]any{"age": map[string]any{"$gt": int64(5)}},
		},
		{
			name:  "implicit equality",
			input: "name $eq 'john'",
			want:  map[string]any{"name": "john"},
		},
		{
			name:  "negated group",
			input: "$not (age $gt 5)",
			want:  map[string]any{"$not": map[string]any{"age": map[string]any{"$gt": int64(5)}}},
		},
		{
			name:  "conjunction",
			input: "a $eq 1 $and b $eq 2",
			want:  map[string]any{"$and": []any{map[string]any{"a": int64(1)}, map[string]any{"b": int64(2)}}},
		},
		{
			name:  "disjunction",
			input: "a $ne x $or b $lte 2.5",
			want: map[string]any{"$or": []any{
				map[string]any{"a": map[string]any{"$ne": "x"}},
				map[string]any{"b": map[string]any{"$lte": 2.5}},
			}},
		},
		{
			name:  "dotted path",
			input: "a.b.c $eq 1",
			want:  map[string]any{"a.b.c": int64(1)},
		},
		{
			name:  "word array",
			input: "tags $in red,green,blue",
			want:  map[string]any{"tags": map[string]any{"$in": []any{"red", "green", "blue"}}},
		},
		{
			name:  "number array",
			input: "n $nin 1,2.5",
			want:  map[string]any{"n": map[string]any{"$nin": []any{1.0, 2.5}}},
		},
		{
			name:  "date",
			input: "created $gt 2020-01-01",
			want:  map[string]any{"created": map[string]any{"$gt": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}},
		},
		{
			name:  "boolean",
			input: "active $eq TRUE",
			want:  map[string]any{"active": true},
		},
		{
			name:  "existence",
			input: "$exists profile.email",
			want:  map[string]any{"profile.email": map[string]any{"$exists": true}},
		},
		{
			name:  "regex",
			input: "name $regex ^jo",
			want:  map[string]any{"name": map[string]any{"$regex": "^jo"}},
		},
		{
			name:  "case insensitive keywords",
			input: "a $EQ 1 $AnD b $Gte 0",
			want: map[string]any{"$and": []any{
				map[string]any{"a": int64(1)},
				map[string]any{"b": map[string]any{"$gte": int64(0)}},
			}},
		},
		{
			name:  "negation is not a binary operand",
			input: "(a $eq 1 $or a $eq 2) $and $not (b $lt 3)",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Compile(tt.input)
			if tt.want == nil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Render(n))
		})
	}
}

func TestCompile_Nesting(t *testing.T) {
	n, err := Compile("(a $eq 1 $or a $eq 2) $and (b $lt 3)")
	require.NoError(t, err)

	assert.Equal(t, NewAnd(
		NewOr(NewComparison("a", OpEq, Int(1)), NewComparison("a", OpEq, Int(2))),
		NewComparison("b", OpLt, Int(3)),
	), n)

	n, err = Compile("$not (a $eq 1 $and b $eq 2)")
	require.NoError(t, err)
	assert.Equal(t, NewNot(NewAnd(
		NewComparison("a", OpEq, Int(1)),
		NewComparison("b", OpEq, Int(2)),
	)), n)

	n, err = Compile("$not a $eq 1")
	require.NoError(t, err)
	assert.Equal(t, NewNot(NewComparison("a", OpEq, Int(1))), n)
}

func TestCompile_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		pos      int
		expected []Kind
	}{
		{"missing value", "age $gt", 7, valueKinds},
		{"chained and", "a $eq 1 $and b $eq 2 $and c $eq 3", 21, []Kind{EOF}},
		{"unclosed paren", "(a $eq 1", 8, []Kind{AND, OR, RPAREN}},
		{"stray close paren", "a $eq 1)", 7, []Kind{AND, OR, EOF}},
		{"leading operator", "$and a $eq 1", 0, []Kind{LPAREN, EXISTS, WORD}},
		{"missing operator", "a b", 2, append([]Kind{DOT}, EQ, NE, LT, LTE, GT, GTE, IN, NIN, REGEX, CONTAINS, STARTS, ENDS)},
		{"double negation", "$not $not a $eq 1", 5, []Kind{LPAREN, EXISTS, WORD}},
		{"dangling dot", "a. $eq 1", 3, []Kind{WORD}},
		{"exists without field", "$exists", 7, []Kind{WORD}},
		{"negation then and", "$not a $eq 1 $and b $eq 2", 13, []Kind{EOF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Compile(tt.input)
			require.Error(t, err)
			assert.Nil(t, n)
			assert.ErrorIs(t, err, ErrInvalidFilter)

			var synErr *SyntaxError
			require.ErrorAs(t, err, &synErr)
			assert.Equal(t, tt.pos, synErr.Pos)
			assert.Equal(t, tt.expected, synErr.Expected)
		})
	}
}

func TestCompile_PercentDecoding(t *testing.T) {
	n, err := Compile("age%20%24gt%205")
	require.NoError(t, err)
	assert.Equal(t, NewComparison("age", OpGt, Int(5)), n)

	// Decoded exactly once: %2520 stays a literal %20.
	n, err = Compile("name $eq a%2520b")
	require.NoError(t, err)
	assert.Equal(t, NewComparison("name", OpEq, String("a%20b")), n)

	// '+' is not a space.
	n, err = Compile("n $eq a+b")
	require.NoError(t, err)
	assert.Equal(t, NewComparison("n", OpEq, String("a+b")), n)

	_, err = Compile("name $eq jo%zz")
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 11, lexErr.Pos)
}

func TestCompile_DottedBareValue(t *testing.T) {
	tests := []struct {
		input string
		want  Node
	}{
		{"email $eq john@x.com", NewComparison("email", OpEq, String("john@x.com"))},
		{"profile.email $eq a.b.c", NewComparison("profile.email", OpEq, String("a.b.c"))},
		{"v $eq v1.2.3", NewComparison("v", OpEq, String("v1.2.3"))},
		{"host $ends example.org", NewComparison("host", OpRegex, String(`example\.org$`))},
		{
			"(email $eq a.b) $or n $eq 1",
			NewOr(NewComparison("email", OpEq, String("a.b")), NewComparison("n", OpEq, Int(1))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := Compile(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	// A gap ends the value.
	_, err := Compile("email $eq john .com")
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_LegacyPatternOperators(t *testing.T) {
	tests := []struct {
		input string
		raw   bool
		want  string
	}{
		{"name $contains 'a.b'", false, `a\.b`},
		{"name $contains 'a.b'", true, "a.b"},
		{"name $starts jo", false, "^jo"},
		{"name $ends 'son+'", false, `son\+$`},
		{"name $ends 'son+'", true, "son+$"},
		{"code $contains 42", false, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := NewCompiler(Options{RawPatterns: tt.raw}).Compile(tt.input)
			require.NoError(t, err)
			assert.Equal(t, NewComparison(strings.Fields(tt.input)[0], OpRegex, String(tt.want)), n)
		})
	}
}

func TestCompile_MaxLength(t *testing.T) {
	c := NewCompiler(Options{MaxLength: 10})

	_, err := c.Compile("a $eq 1")
	require.NoError(t, err)

	_, err = c.Compile("name $eq 'a long value'")
	assert.ErrorIs(t, err, ErrFilterTooLong)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_Deterministic(t *testing.T) {
	inputs := []string{
		"age $gt 5",
		"(a $in 1,2,3 $or $exists b) $and ($not c $eq 'x')",
		"created $gte 2021-06-01T12:00:00.5+02:00 $and tags $nin a,b",
	}
	for _, in := range inputs {
		first, err1 := Compile(in)
		second, err2 := Compile(in)
		assert.Equal(t, err1 == nil, err2 == nil)
		assert.Equal(t, first, second)
	}
}

func TestPosition(t *testing.T) {
	_, err := Compile("a $eq")
	pos, ok := Position(err)
	assert.True(t, ok)
	assert.Equal(t, 5, pos)

	_, ok = Position(assert.AnError)
	assert.False(t, ok)
}
