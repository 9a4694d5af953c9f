package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/coffersTech/nanodoc/internal/config"
	"github.com/coffersTech/nanodoc/internal/controller"
	"github.com/coffersTech/nanodoc/internal/pkg/logger"
	"github.com/fatih/color"
)

// TokenCmd groups the API token commands.
type TokenCmd struct {
	Add    TokenAddCmd    `cmd:"" help:"Issue a new API token"`
	List   TokenListCmd   `cmd:"" help:"List API tokens"`
	Remove TokenRemoveCmd `cmd:"" help:"Revoke an API token"`
}

type TokenAddCmd struct {
	Name string `arg:"" help:"Token name"`
	Type string `help:"Access level" enum:"read,write" default:"read" short:"t"`
}

func (cmd *TokenAddCmd) Run(ctx *Context) error {
	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}

	secret, tok, err := catalog.AddToken(cmd.Name, controller.TokenType(cmd.Type))
	if err != nil {
		return err
	}

	logger.Info("token issued", "id", tok.ID, "name", tok.Name, "type", tok.Type)
	color.Green("Token %q (%s) created with id %s", tok.Name, tok.Type, tok.ID)
	fmt.Println(secret)
	color.Yellow("Store the secret now. It cannot be shown again.")
	return nil
}

type TokenListCmd struct{}

func (cmd *TokenListCmd) Run(ctx *Context) error {
	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}

	tokens := catalog.Tokens()
	if len(tokens) == 0 {
		color.Yellow("No tokens. Authentication is disabled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tCREATED")
	for _, t := range tokens {
		created := time.Unix(t.CreatedAt, 0).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Type, created)
	}
	return w.Flush()
}

type TokenRemoveCmd struct {
	Token string `arg:"" help:"Token id or name"`
}

func (cmd *TokenRemoveCmd) Run(ctx *Context) error {
	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}
	if err := catalog.DeleteToken(cmd.Token); err != nil {
		return err
	}
	logger.Info("token revoked", "token", cmd.Token)
	color.Green("Token %s removed", cmd.Token)
	return nil
}

func loadCatalog(ctx *Context) (*controller.Catalog, error) {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return nil, err
	}
	log := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return openCatalog(cfg, log)
}
