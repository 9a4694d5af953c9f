package repl

import (
	"strings"
	"testing"

	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestEval(t *testing.T) {
	r := New(Options{})

	tests := []struct {
		name     string
		input    string
		contains []string
		quit     bool
	}{
		{"blank", "   ", nil, false},
		{"quit", ":quit", nil, true},
		{"quit alias", ":q", nil, true},
		{"help", ":help", []string{":tokens <expr>"}, false},
		{
			name:     "compiled",
			input:    "age $gt 5 $and name $eq 'ann'",
			contains: []string{`"$and": [`, `"$gt": 5`, `"name": "ann"`, "canonical: age $gt 5 $and name $eq 'ann'"},
		},
		{
			name:     "tokens",
			input:    ":tokens age $gt 5",
			contains: []string{"   0  WORD       age", "   4  $gt        $gt", "   8  NUMBER     5", "   9  EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, quit := r.Eval(tt.input)
			assert.Equal(t, tt.quit, quit)
			if tt.contains == nil {
				assert.Empty(t, out)
			}
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestEval_ErrorCaret(t *testing.T) {
	r := New(Options{})

	tests := []struct {
		name  string
		input string
		shown string
		pos   int
	}{
		{"missing value", "age $gt", "age $gt", 7},
		{"unbalanced", "(age $gt 5", "(age $gt 5", 10},
		{"bad escape", "name $eq jo%zz", "name $eq jo%zz", 11},
		{"decoded text is shown", "age%20$gt", "age $gt", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, quit := r.Eval(tt.input)
			assert.False(t, quit)

			lines := strings.Split(out, "\n")
			if assert.Len(t, lines, 3) {
				assert.Equal(t, "  "+tt.shown, lines[0])
				assert.Equal(t, "  "+strings.Repeat(" ", tt.pos)+"^", lines[1])
				assert.Contains(t, lines[2], "invalid filter")
			}
		})
	}
}

func TestEval_TooLong(t *testing.T) {
	r := New(Options{Compiler: filterql.NewCompiler(filterql.Options{MaxLength: 5})})

	out, _ := r.Eval("age $gt 5")
	assert.Contains(t, out, "filter too long")
	assert.NotContains(t, out, "^")
}
