package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coffersTech/nanodoc/internal/config"
	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/repl"
)

// CompileCmd prints the rendered predicate of one filter.
type CompileCmd struct {
	Expr      string `arg:"" help:"Filter expression"`
	Canonical bool   `help:"Print the canonical filter text instead of the rendered predicate" short:"c"`
}

func (cmd *CompileCmd) Run(ctx *Context) error {
	compiler, err := loadCompiler(ctx)
	if err != nil {
		return err
	}

	node, err := compiler.Compile(cmd.Expr)
	if err != nil {
		fmt.Fprintln(os.Stderr, repl.FormatError(cmd.Expr, err))
		return fmt.Errorf("compile failed")
	}

	if cmd.Canonical {
		fmt.Println(filterql.Format(node))
		return nil
	}
	out, err := json.MarshalIndent(filterql.Render(node), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ReplCmd starts the interactive filter shell.
type ReplCmd struct {
	History string `help:"History file" default:"~/.nanodoc_history" type:"path"`
}

func (cmd *ReplCmd) Run(ctx *Context) error {
	compiler, err := loadCompiler(ctx)
	if err != nil {
		return err
	}
	history := cmd.History
	if history != "" {
		os.MkdirAll(filepath.Dir(history), 0755)
	}
	return repl.New(repl.Options{Compiler: compiler, HistoryFile: history}).Run()
}

// loadCompiler builds a compiler with the configured limits.
func loadCompiler(ctx *Context) (*filterql.Compiler, error) {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return nil, err
	}
	return filterql.NewCompiler(filterql.Options{
		MaxLength:   cfg.Limits.MaxFilterLength,
		RawPatterns: cfg.Filter.RawPatterns,
	}), nil
}
