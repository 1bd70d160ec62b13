// Package cli implements hpctl, the command-line client of the wallet
// server.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/happypaisa/internal/client/client"
	"github.com/dmitrijs2005/happypaisa/internal/client/config"
	"github.com/spf13/cobra"
)

// Dialer opens a client for addr. Tests swap in a fake.
type Dialer func(addr string) (client.Client, error)

// GRPCDialer is the production Dialer.
func GRPCDialer(addr string) (client.Client, error) {
	return client.NewGRPCClient(addr)
}

type RootOptions struct {
	ConfigPath string
	ServerAddr string
	Output     string
	Wait       bool
}

// App is what every subcommand runs against once flags are parsed.
type App struct {
	config *config.Config
	client client.Client
	out    io.Writer
}

func (a *App) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.config.Timeout)
}

func (a *App) printer() *printer {
	return &printer{w: a.out, format: a.config.Output}
}

func (o *RootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.ServerAddr = o.ServerAddr
	}
	if flags.Changed("output") {
		cfg.Output = o.Output
	}
	if flags.Changed("wait") {
		cfg.Wait = o.Wait
	}
	if flags.Changed("timeout") {
		d, err := flags.GetDuration("timeout")
		if err != nil {
			return nil, err
		}
		cfg.Timeout = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRootCommand builds the hpctl command tree.
func NewRootCommand(dial Dialer) *cobra.Command {
	opts := &RootOptions{}
	app := &App{}

	cmd := &cobra.Command{
		Use:           "hpctl",
		Short:         "hpctl - Happy Paisa wallet client",
		Long:          "Inspect and move Happy Paisa balances held by the custodial wallet server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			c, err := dial(cfg.ServerAddr)
			if err != nil {
				return fmt.Errorf("error connecting to %s: %w", cfg.ServerAddr, err)
			}
			app.config, app.client, app.out = cfg, c, cmd.OutOrStdout()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.client == nil {
				return nil
			}
			return app.client.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.json or .yaml)")
	pf.StringVarP(&opts.ServerAddr, "addr", "a", "", "wallet server address")
	pf.StringVarP(&opts.Output, "output", "o", config.OutputText, "output format (text|json)")
	pf.BoolVarP(&opts.Wait, "wait", "w", false, "wait for the chain to settle mutations")
	pf.Duration("timeout", 0, "per-command timeout")

	cmd.AddCommand(
		newBalanceCommand(app),
		newHistoryCommand(app),
		newChainHistoryCommand(app),
		newTxCommand(app),
		newEntryCommand(app, "credit", "Add HP to a user's balance"),
		newEntryCommand(app, "debit", "Spend HP from a user's balance"),
		newTransferCommand(app),
		newConvertCommand(app),
		newAddressCommand(app),
		newSyncCommand(app),
		newHealthCommand(app),
		newSummaryCommand(app),
	)
	return cmd
}
