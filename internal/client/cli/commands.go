package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// explain adds the balance the server reported to a rejected mutation.
func explain(err error) error {
	var be *common.BalanceError
	if errors.As(err, &be) {
		return fmt.Errorf("%w (current balance %s)", be.Kind, money.FromMilli(be.Balance))
	}
	return err
}

func newBalanceCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user>",
		Short: "Show a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			b, err := app.client.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer().balance(b)
		},
	}
}

func newHistoryCommand(app *App) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "List a user's ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			txs, err := app.client.History(ctx, args[0], limit, offset)
			if err != nil {
				return err
			}
			return app.printer().transactions(txs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}

func newChainHistoryCommand(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chain-history <user>",
		Short: "List the transfers the chain holds for a user's address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.ChainHistory(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return app.printer().chainHistory(resp)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "transfers to show")
	return cmd
}

func newTxCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tx <id>",
		Short: "Show one ledger entry and its chain status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.Transaction(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer().transaction(resp)
		},
	}
}

// newEntryCommand builds credit and debit, which differ only in kind. A
// debit paid to another user is sent as a transfer_out.
func newEntryCommand(app *App, kind, short string) *cobra.Command {
	var id, category, description, counterparty string
	cmd := &cobra.Command{
		Use:   kind + " <user> <amount>",
		Short: short,
		Long: short + `.

The amount is in HP with up to three decimals. Re-running the command with
the same --id is safe: the server replays the original entry.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := money.Parse(args[1])
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			req := &api.CreateTransactionRequest{
				ID:          id,
				UserID:      args[0],
				Kind:        kind,
				Amount:      amount,
				Category:    category,
				Description: description,
				Wait:        app.config.Wait,
			}
			if counterparty != "" {
				req.Kind = "transfer_out"
				req.Counterparty = counterparty
			}
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.CreateTransaction(ctx, req)
			if err != nil {
				return fmt.Errorf("%s %s: %w", kind, id, explain(err))
			}
			return app.printer().transaction(resp)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&category, "category", "", "spending category")
	cmd.Flags().StringVar(&description, "description", "", "free text")
	if kind == "debit" {
		cmd.Flags().StringVar(&counterparty, "to", "", "pay this user instead of burning the funds")
	}
	return cmd
}

func newTransferCommand(app *App) *cobra.Command {
	var id, description string
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move HP between two users",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := money.Parse(args[2])
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.Transfer(ctx, &api.TransferRequest{
				CorrelationID: id,
				From:          args[0],
				To:            args[1],
				Amount:        amount,
				Description:   description,
				Wait:          app.config.Wait,
			})
			if err != nil {
				return fmt.Errorf("transfer %s: %w", id, explain(err))
			}
			return app.printer().transfer(resp)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "correlation id (generated when empty)")
	cmd.Flags().StringVar(&description, "description", "", "free text")
	return cmd
}

func newConvertCommand(app *App) *cobra.Command {
	var id, to string
	cmd := &cobra.Command{
		Use:   "convert <user> <amount> --to hp|inr",
		Short: "Exchange between INR and HP at 1 HP = 1000 INR",
		Long: `Exchange between INR and HP at 1 HP = 1000 INR.

With --to hp the amount is INR to buy HP with; with --to inr it is HP to
sell. HP amounts are rounded half-even to three decimals.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q", common.ErrInvalidAmount, args[1])
			}
			var direction string
			switch strings.ToLower(to) {
			case "hp":
				direction = api.INRToHP
			case "inr":
				direction = api.HPToINR
			default:
				return fmt.Errorf("--to must be hp or inr, got %q", to)
			}
			if id == "" {
				id = uuid.NewString()
			}
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.Convert(ctx, &api.ConvertRequest{
				ID:        id,
				UserID:    args[0],
				Direction: direction,
				Amount:    amount,
				Wait:      app.config.Wait,
			})
			if err != nil {
				return fmt.Errorf("convert %s: %w", id, explain(err))
			}
			return app.printer().conversion(resp)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&to, "to", "hp", "target currency (hp|inr)")
	return cmd
}

func newAddressCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "address <user>",
		Short: "Show a user's custodial chain address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			addr, err := app.client.ChainAddress(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer().address(args[0], addr)
		},
	}
}

func newSyncCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [user]",
		Short: "Reconcile a user, or every wallet, against the chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user string
			if len(args) == 1 {
				user = args[0]
			}
			ctx, cancel := app.context(cmd)
			defer cancel()
			resp, err := app.client.Sync(ctx, user)
			if err != nil {
				return err
			}
			if err := app.printer().sync(resp); err != nil {
				return err
			}
			if len(resp.Errors) > 0 {
				return fmt.Errorf("%d wallet(s) could not be reconciled", len(resp.Errors))
			}
			return nil
		},
	}
}

func newHealthCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show chain connectivity and queued submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			h, err := app.client.Health(ctx)
			if err != nil {
				return err
			}
			if err := app.printer().health(h); err != nil {
				return err
			}
			if !h.ChainOK {
				return errors.New("chain unreachable")
			}
			return nil
		},
	}
}

func newSummaryCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <user>",
		Short: "Show balance, 30-day spending by category and recent entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.context(cmd)
			defer cancel()
			s, err := app.client.Summary(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer().summary(s)
		},
	}
}
