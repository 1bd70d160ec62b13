package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/client/config"
)

const timeLayout = "2006-01-02 15:04:05"

type printer struct {
	w      io.Writer
	format string
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows aligned into columns.
func (p *printer) table(header string, rows func(w io.Writer)) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	if header != "" {
		fmt.Fprintln(tw, header)
	}
	rows(tw)
	return tw.Flush()
}

func txRow(w io.Writer, t api.Transaction) {
	status := t.Status
	if t.Attempt > 1 {
		status = fmt.Sprintf("%s (attempt %d)", status, t.Attempt)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		t.ID, t.Kind, t.Amount, status, t.Category, t.Counterparty, t.CreatedAt.Local().Format(timeLayout))
}

const txHeader = "ID\tKIND\tAMOUNT\tSTATUS\tCATEGORY\tCOUNTERPARTY\tCREATED"

func (p *printer) balance(b *api.BalanceResponse) error {
	if p.format == config.OutputJSON {
		return p.json(b)
	}
	return p.table("", func(w io.Writer) {
		fmt.Fprintf(w, "user:\t%s\n", b.UserID)
		fmt.Fprintf(w, "balance:\t%s HP\n", b.Balance)
		if b.Owed > 0 {
			fmt.Fprintf(w, "owed:\t%s HP\n", b.Owed)
		}
		if b.ChainAddress != "" {
			fmt.Fprintf(w, "address:\t%s\n", b.ChainAddress)
		}
		if b.LastSyncedAt != nil {
			fmt.Fprintf(w, "synced:\t%s\n", b.LastSyncedAt.Local().Format(timeLayout))
		}
		if b.Cached {
			fmt.Fprintln(w, "note:\tcached figure, may lag slightly")
		}
	})
}

func (p *printer) transactions(txs []api.Transaction) error {
	if p.format == config.OutputJSON {
		if txs == nil {
			txs = []api.Transaction{}
		}
		return p.json(txs)
	}
	if len(txs) == 0 {
		_, err := fmt.Fprintln(p.w, "no entries")
		return err
	}
	return p.table(txHeader, func(w io.Writer) {
		for _, t := range txs {
			txRow(w, t)
		}
	})
}

func (p *printer) chainHistory(r *api.ListChainTransactionsResponse) error {
	if p.format == config.OutputJSON {
		if r.Transactions == nil {
			r.Transactions = []api.ChainTransaction{}
		}
		return p.json(r)
	}
	fmt.Fprintf(p.w, "address: %s\n", r.Address)
	if len(r.Transactions) == 0 {
		_, err := fmt.Fprintln(p.w, "no chain transfers")
		return err
	}
	return p.table("HASH\tDELTA\tSTATE\tBLOCK\tREFERENCE\tTIME", func(w io.Writer) {
		for _, t := range r.Transactions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				t.Hash, t.Delta, t.State, t.Block, t.Reference, t.Timestamp.Local().Format(timeLayout))
		}
	})
}

func (p *printer) failure(f string) {
	if f != "" {
		fmt.Fprintf(p.w, "chain refused the submission: %s\n", f)
	}
}

func (p *printer) transaction(r *api.TransactionResponse) error {
	if p.format == config.OutputJSON {
		return p.json(r)
	}
	err := p.table(txHeader, func(w io.Writer) { txRow(w, r.Transaction) })
	if r.Replayed {
		fmt.Fprintln(p.w, "replayed: an entry with this id already existed")
	}
	if r.Transaction.ChainHash != "" {
		fmt.Fprintf(p.w, "chain hash: %s\n", r.Transaction.ChainHash)
	}
	p.failure(r.Failure)
	return err
}

func (p *printer) transfer(r *api.TransferResponse) error {
	if p.format == config.OutputJSON {
		return p.json(r)
	}
	err := p.table(txHeader, func(w io.Writer) {
		txRow(w, r.Out)
		txRow(w, r.In)
	})
	if r.Replayed {
		fmt.Fprintln(p.w, "replayed: a transfer with this id already existed")
	}
	p.failure(r.Failure)
	return err
}

func (p *printer) conversion(r *api.ConvertResponse) error {
	if p.format == config.OutputJSON {
		return p.json(r)
	}
	fmt.Fprintf(p.w, "%s INR <-> %s HP\n", r.INR.StringFixed(2), r.HP)
	return p.transaction(&api.TransactionResponse{Transaction: r.Transaction, Replayed: r.Replayed, Failure: r.Failure})
}

func (p *printer) address(user, addr string) error {
	if p.format == config.OutputJSON {
		return p.json(api.ChainAddressResponse{UserID: user, Address: addr})
	}
	_, err := fmt.Fprintln(p.w, addr)
	return err
}

func (p *printer) sync(r *api.SyncResponse) error {
	if p.format == config.OutputJSON {
		return p.json(r)
	}
	err := p.table("USER\tPRIOR\tNEW\tCHAIN\tIMPORTED\tCONFIRMED\tADJUSTMENT\tBLOCK", func(w io.Writer) {
		for _, rep := range r.Reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%d\n",
				rep.UserID, rep.PriorBalance, rep.NewBalance, rep.ChainBalance,
				rep.Imported, rep.Confirmed, rep.Adjustment, rep.LastBlock)
		}
	})
	for _, e := range r.Errors {
		fmt.Fprintf(p.w, "error: %s\n", e)
	}
	return err
}

func (p *printer) health(h *api.HealthResponse) error {
	if p.format == config.OutputJSON {
		return p.json(h)
	}
	return p.table("", func(w io.Writer) {
		if h.ChainOK {
			fmt.Fprintf(w, "chain:\tok (%s, block %d)\n", h.Network, h.CurrentBlock)
		} else {
			fmt.Fprintf(w, "chain:\tunreachable: %s\n", h.ChainError)
		}
		fmt.Fprintf(w, "queued:\t%d\n", h.Queued)
		fmt.Fprintf(w, "checked:\t%s\n", h.CheckedAt.Local().Format(time.RFC3339))
	})
}

func (p *printer) summary(s *api.SummaryResponse) error {
	if p.format == config.OutputJSON {
		return p.json(s)
	}
	if err := p.balance(&s.Balance); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "\nspent since %s: %s HP\n", s.Since.Local().Format("2006-01-02"), s.Spent)
	if len(s.Spending) > 0 {
		if err := p.table("CATEGORY\tTOTAL", func(w io.Writer) {
			for _, c := range s.Spending {
				fmt.Fprintf(w, "%s\t%s\n", c.Category, c.Total)
			}
		}); err != nil {
			return err
		}
	}
	fmt.Fprintln(p.w, "\nrecent:")
	return p.transactions(s.Recent)
}
