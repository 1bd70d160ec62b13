package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type kind struct {
	name string
	err  error
	code codes.Code
}

// kinds is checked in order; the first sentinel found in an error chain
// decides its status.
var kinds = []kind{
	{"invalid_amount", common.ErrInvalidAmount, codes.InvalidArgument},
	{"invalid_request", common.ErrInvalidRequest, codes.InvalidArgument},
	{"insufficient_balance", common.ErrInsufficientBalance, codes.FailedPrecondition},
	{"wallet_archived", common.ErrWalletArchived, codes.FailedPrecondition},
	{"duplicate_transaction", common.ErrDuplicateTransaction, codes.AlreadyExists},
	{"gateway_unavailable", common.ErrGatewayUnavailable, codes.Unavailable},
	{"submission_rejected", common.ErrSubmissionRejected, codes.Aborted},
	{"sync_conflict", common.ErrSyncConflict, codes.Aborted},
	{"invalid_transition", common.ErrInvalidTransition, codes.Internal},
	{"not_found", common.ErrorNotFound, codes.NotFound},
}

// ErrorDetail travels as a structpb.Struct status detail.
type ErrorDetail struct {
	Kind   string
	UserID string
	// Balance is the authoritative balance when the server knew it.
	Balance *money.HP
}

func (d ErrorDetail) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{"kind": d.Kind}
	if d.UserID != "" {
		fields["user_id"] = d.UserID
	}
	if d.Balance != nil {
		fields["balance"] = d.Balance.String()
		fields["balance_milli"] = strconv.FormatInt(d.Balance.Milli(), 10)
	}
	return structpb.NewStruct(fields)
}

func detailFromStruct(s *structpb.Struct) (ErrorDetail, bool) {
	f := s.GetFields()
	k, ok := f["kind"]
	if !ok {
		return ErrorDetail{}, false
	}
	d := ErrorDetail{Kind: k.GetStringValue(), UserID: f["user_id"].GetStringValue()}
	if v, ok := f["balance_milli"]; ok {
		if m, err := strconv.ParseInt(v.GetStringValue(), 10, 64); err == nil {
			b := money.FromMilli(m)
			d.Balance = &b
		}
	}
	return d, true
}

// Status converts a domain error into a gRPC status. balance, when given,
// is attached unless err already carries one. Errors outside the taxonomy
// become Internal without leaking their text.
func Status(err error, userID string, balance *money.HP) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	}

	for _, k := range kinds {
		if !errors.Is(err, k.err) {
			continue
		}
		d := ErrorDetail{Kind: k.name, UserID: userID, Balance: balance}
		var be *common.BalanceError
		if errors.As(err, &be) {
			b := money.FromMilli(be.Balance)
			d.UserID, d.Balance = be.UserID, &b
		}
		st := status.New(k.code, err.Error())
		s, serr := d.toStruct()
		if serr != nil {
			return st
		}
		if withDetail, derr := st.WithDetails(s); derr == nil {
			return withDetail
		}
		return st
	}
	return status.New(codes.Internal, common.ErrorInternal.Error())
}

// Detail extracts the error detail carried by err, if any.
func Detail(err error) (ErrorDetail, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return ErrorDetail{}, false
	}
	for _, detail := range st.Details() {
		if s, ok := detail.(*structpb.Struct); ok {
			if d, ok := detailFromStruct(s); ok {
				return d, true
			}
		}
	}
	return ErrorDetail{}, false
}

// remoteError keeps the server's message while matching the sentinel of
// its kind.
type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// FromStatus turns a gRPC error back into one that matches the domain
// sentinels with errors.Is. Balance details come back as a
// common.BalanceError.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	d, ok := Detail(err)
	if !ok {
		return err
	}
	for _, k := range kinds {
		if k.name != d.Kind {
			continue
		}
		re := &remoteError{msg: st.Message(), kind: k.err}
		if d.Balance != nil && k.err == common.ErrInsufficientBalance {
			return &common.BalanceError{Kind: re, UserID: d.UserID, Balance: d.Balance.Milli()}
		}
		return re
	}
	return err
}
