// Package repl is an interactive shell for trying out filter expressions.
package repl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/fatih/color"
	"github.com/peterh/liner"
)

const prompt = "filter> "

const help = `Enter a filter expression to see its rendered predicate.
  :tokens <expr>   show the token stream
  :help            show this help
  :quit            exit`

var (
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed, color.Bold)
	caretColor = color.New(color.FgYellow, color.Bold)
	dimColor   = color.New(color.FgHiBlack)
)

// Options configure a REPL.
type Options struct {
	Compiler    *filterql.Compiler // nil uses the default options
	HistoryFile string             // empty disables history persistence
	Out         io.Writer          // defaults to os.Stdout
}

type REPL struct {
	compiler *filterql.Compiler
	history  string
	out      io.Writer
}

func New(opts Options) *REPL {
	r := &REPL{
		compiler: opts.Compiler,
		history:  opts.HistoryFile,
		out:      opts.Out,
	}
	if r.compiler == nil {
		r.compiler = filterql.NewCompiler(filterql.Options{})
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	return r
}

// Run reads lines until :quit, EOF or Ctrl-C.
func (r *REPL) Run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if r.history != "" {
		if f, err := os.Open(r.history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer r.saveHistory(line)
	}

	fmt.Fprintln(r.out, dimColor.Sprint("NanoDoc filter shell. Type :help for commands."))
	for {
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		out, quit := r.Eval(input)
		if out != "" {
			fmt.Fprintln(r.out, out)
		}
		if quit {
			return nil
		}
	}
}

func (r *REPL) saveHistory(line *liner.State) {
	f, err := os.Create(r.history)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// Eval handles one input line and returns the text to print.
func (r *REPL) Eval(input string) (output string, quit bool) {
	input = strings.TrimSpace(input)
	cmd, arg, _ := strings.Cut(input, " ")

	switch cmd {
	case "":
		return "", false
	case ":quit", ":q", ":exit":
		return "", true
	case ":help":
		return help, false
	case ":tokens":
		return r.tokens(strings.TrimSpace(arg)), false
	}
	return r.compile(input), false
}

func (r *REPL) compile(input string) string {
	node, err := r.compiler.Compile(input)
	if err != nil {
		return FormatError(input, err)
	}

	rendered, err := json.MarshalIndent(filterql.Render(node), "", "  ")
	if err != nil {
		return errColor.Sprint(err.Error())
	}
	return okColor.Sprint(string(rendered)) + "\n" + dimColor.Sprint("canonical: "+filterql.Format(node))
}

func (r *REPL) tokens(input string) string {
	text, err := filterql.Decode(input)
	if err != nil {
		return FormatError(input, err)
	}
	tokens, err := filterql.Tokenize(text)
	if err != nil {
		return FormatError(input, err)
	}

	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%4d  %-10s %s", tok.Pos, tok.Kind, tok.Lexeme)
	}
	return sb.String()
}

// FormatError renders err with a caret under the position it names. Positions
// past the percent-decoding step refer to the decoded text.
func FormatError(input string, err error) string {
	msg := errColor.Sprint(err.Error())
	pos, ok := filterql.Position(err)
	if !ok {
		return msg
	}

	shown := input
	if decoded, decErr := filterql.Decode(input); decErr == nil {
		shown = decoded
	}
	if pos > len(shown) {
		pos = len(shown)
	}
	return "  " + shown + "\n  " + strings.Repeat(" ", pos) + caretColor.Sprint("^") + "\n" + msg
}
