package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// Version is set at build time.
var Version = "0.1.0"

// Context represents the global context for commands
type Context struct {
	Config string
}

var CLI struct {
	Config string `help:"Configuration file path" default:"nanodoc.yaml" type:"path"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the REST server"`
	Compile CompileCmd `cmd:"" help:"Compile a filter and print the rendered predicate"`
	Repl    ReplCmd    `cmd:"" help:"Interactive filter shell"`
	Token   TokenCmd   `cmd:"" help:"Manage API tokens"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

func (cmd *VersionCmd) Run() error {
	fmt.Println("NanoDoc v" + Version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("nanodoc"),
		kong.Description("A small JSON document store with a URL filter language."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&Context{Config: CLI.Config})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
