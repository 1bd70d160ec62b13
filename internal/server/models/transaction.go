package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/shopspring/decimal"
)

type TxKind string

const (
	KindCredit        TxKind = "credit"
	KindDebit         TxKind = "debit"
	KindTransferOut   TxKind = "transfer_out"
	KindTransferIn    TxKind = "transfer_in"
	KindConversionIn  TxKind = "conversion_in"
	KindConversionOut TxKind = "conversion_out"
	KindAdjustment    TxKind = "reconciliation_adjustment"
	// KindChainImport marks history copied from the chain that has no local
	// counterpart. It never changes the balance.
	KindChainImport TxKind = "chain_import"
)

func (k TxKind) Valid() bool {
	switch k {
	case KindCredit, KindDebit, KindTransferOut, KindTransferIn,
		KindConversionIn, KindConversionOut, KindAdjustment, KindChainImport:
		return true
	}
	return false
}

type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusSubmitted TxStatus = "submitted"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TxStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var transitions = map[TxStatus][]TxStatus{
	StatusPending:   {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether a transaction may move from one status to
// another.
func CanTransition(from, to TxStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transaction is one immutable ledger entry. Only Status, ChainHash and
// UpdatedAt change after creation.
type Transaction struct {
	ID            string
	UserID        string
	Kind          TxKind
	Amount        money.HP
	AmountINR     decimal.NullDecimal
	Counterparty  string
	CorrelationID string
	Status        TxStatus
	ChainHash     string
	Category      string
	Description   string
	Attempt       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SignedDelta is the effect of the entry on the owner's balance.
func (t *Transaction) SignedDelta() money.HP {
	switch t.Kind {
	case KindCredit, KindTransferIn, KindConversionIn:
		return t.Amount
	case KindDebit, KindTransferOut, KindConversionOut:
		return -t.Amount
	case KindAdjustment:
		return t.Amount
	default:
		return 0
	}
}

// NeedsChain reports whether the entry is mirrored by a chain submission.
func (t *Transaction) NeedsChain() bool {
	return t.Kind != KindAdjustment && t.Kind != KindChainImport
}

// SamePayload reports whether o describes the same operation as t, ignoring
// lifecycle fields.
func (t *Transaction) SamePayload(o *Transaction) bool {
	return t.ID == o.ID &&
		t.UserID == o.UserID &&
		t.Kind == o.Kind &&
		t.Amount == o.Amount &&
		t.AmountINR.Valid == o.AmountINR.Valid &&
		t.AmountINR.Decimal.Equal(o.AmountINR.Decimal) &&
		t.Counterparty == o.Counterparty &&
		t.CorrelationID == o.CorrelationID &&
		t.Category == o.Category &&
		t.Description == o.Description
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidAmount, fmt.Sprintf(format, args...))
}

// Validate enforces which fields each kind may carry.
func (t *Transaction) Validate() error {
	if t.ID == "" || t.UserID == "" {
		return invalid("id and user are required")
	}
	if !t.Kind.Valid() {
		return invalid("unknown kind %q", t.Kind)
	}

	switch t.Kind {
	case KindAdjustment, KindChainImport:
		if t.Amount == 0 {
			return invalid("%s amount must be non-zero", t.Kind)
		}
	default:
		if !t.Amount.IsPositive() {
			return invalid("amount must be positive, got %s", t.Amount)
		}
	}

	isTransfer := t.Kind == KindTransferOut || t.Kind == KindTransferIn
	if isTransfer {
		if t.Counterparty == "" || t.CorrelationID == "" {
			return invalid("transfer requires counterparty and correlation id")
		}
		if t.Counterparty == t.UserID {
			return invalid("transfer to self")
		}
	} else if t.CorrelationID != "" {
		return invalid("%s cannot carry a correlation id", t.Kind)
	} else if t.Counterparty != "" && t.Kind != KindChainImport {
		return invalid("%s cannot carry a counterparty", t.Kind)
	}

	isConversion := t.Kind == KindConversionIn || t.Kind == KindConversionOut
	if isConversion {
		if !t.AmountINR.Valid || !t.AmountINR.Decimal.IsPositive() {
			return invalid("conversion requires a positive INR amount")
		}
	} else if t.AmountINR.Valid {
		return invalid("%s cannot carry an INR amount", t.Kind)
	}

	return nil
}

func newTx(id, userID string, kind TxKind, amount money.HP) *Transaction {
	return &Transaction{
		ID:      id,
		UserID:  userID,
		Kind:    kind,
		Amount:  amount,
		Status:  StatusPending,
		Attempt: 1,
	}
}

func checked(t *Transaction) (*Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func NewCredit(id, userID string, amount money.HP, category, description string) (*Transaction, error) {
	t := newTx(id, userID, KindCredit, amount)
	t.Category, t.Description = category, description
	return checked(t)
}

func NewDebit(id, userID string, amount money.HP, category, description string) (*Transaction, error) {
	t := newTx(id, userID, KindDebit, amount)
	t.Category, t.Description = category, description
	return checked(t)
}

// TransferLegIDs returns the ids of the two legs of a transfer.
func TransferLegIDs(correlationID string) (out, in string) {
	return correlationID + "-out", correlationID + "-in"
}

// NewTransferPair builds both legs of a transfer. They share correlationID
// and carry equal amounts.
func NewTransferPair(correlationID, from, to string, amount money.HP, description string) (*Transaction, *Transaction, error) {
	outID, inID := TransferLegIDs(correlationID)

	out := newTx(outID, from, KindTransferOut, amount)
	out.Counterparty, out.CorrelationID, out.Description, out.Category = to, correlationID, description, "transfer"

	in := newTx(inID, to, KindTransferIn, amount)
	in.Counterparty, in.CorrelationID, in.Description, in.Category = from, correlationID, description, "transfer"

	if err := out.Validate(); err != nil {
		return nil, nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

func NewConversionIn(id, userID string, amount money.HP, inr decimal.Decimal) (*Transaction, error) {
	t := newTx(id, userID, KindConversionIn, amount)
	t.AmountINR = decimal.NewNullDecimal(inr)
	t.Category, t.Description = "conversion", fmt.Sprintf("converted %s INR to %s HP", inr.StringFixed(2), amount)
	return checked(t)
}

func NewConversionOut(id, userID string, amount money.HP, inr decimal.Decimal) (*Transaction, error) {
	t := newTx(id, userID, KindConversionOut, amount)
	t.AmountINR = decimal.NewNullDecimal(inr)
	t.Category, t.Description = "conversion", fmt.Sprintf("converted %s HP to %s INR", amount, inr.StringFixed(2))
	return checked(t)
}

// NewAdjustment records a reconciliation correction. delta carries its sign
// and the entry is already confirmed.
func NewAdjustment(id, userID string, delta money.HP, description string) (*Transaction, error) {
	t := newTx(id, userID, KindAdjustment, delta)
	t.Status = StatusConfirmed
	t.Category, t.Description = "reconciliation", description
	return checked(t)
}

// ChainImportID is the ledger id of a chain transaction imported for userID.
func ChainImportID(userID, hash string) string {
	return "chain-" + userID + "-" + hash
}

// NewChainImport records chain history with no local counterpart. amount is
// signed from the user's point of view.
func NewChainImport(userID, hash string, amount money.HP, counterparty string, at time.Time) (*Transaction, error) {
	t := newTx(ChainImportID(userID, hash), userID, KindChainImport, amount)
	t.Status = StatusConfirmed
	t.ChainHash = hash
	t.Counterparty = counterparty
	t.Category, t.Description = "chain", "imported from chain"
	t.CreatedAt, t.UpdatedAt = at, at
	return checked(t)
}
