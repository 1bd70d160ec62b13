package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/shopspring/decimal"
)

// Converter exchanges INR and HP at the fixed rate of 1 HP = 1000 INR.
// Fiat moves outside the system; only the HP side is booked here.
type Converter struct {
	coordinator *Coordinator
}

func NewConverter(c *Coordinator) *Converter {
	return &Converter{coordinator: c}
}

type ConversionResult struct {
	EntryResult
	HP  money.HP
	INR decimal.Decimal
}

// INRToHP credits the HP value of amountINR, rounded half to even at
// three places. An amount that rounds to nothing is rejected.
func (c *Converter) INRToHP(ctx context.Context, id, userID string, amountINR decimal.Decimal) (*ConversionResult, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if !amountINR.IsPositive() {
		return nil, fmt.Errorf("%w: INR amount must be positive, got %s", common.ErrInvalidAmount, amountINR)
	}
	hp, err := money.INRToHP(amountINR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAmount, err)
	}
	if !hp.IsPositive() {
		return nil, fmt.Errorf("%w: %s INR is less than the smallest HP unit", common.ErrInvalidAmount, amountINR)
	}
	if id == "" {
		id = c.coordinator.newID()
	}

	t, err := models.NewConversionIn(id, userID, hp, amountINR)
	if err != nil {
		return nil, err
	}
	res, err := c.coordinator.commit(ctx, t)
	if err != nil {
		return nil, err
	}
	return &ConversionResult{EntryResult: *res, HP: hp, INR: amountINR}, nil
}

// HPToINR debits amountHP and reports its INR value.
func (c *Converter) HPToINR(ctx context.Context, id, userID string, amountHP money.HP) (*ConversionResult, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if !amountHP.IsPositive() {
		return nil, fmt.Errorf("%w: HP amount must be positive, got %s", common.ErrInvalidAmount, amountHP)
	}
	if id == "" {
		id = c.coordinator.newID()
	}

	inr := amountHP.INR()
	t, err := models.NewConversionOut(id, userID, amountHP, inr)
	if err != nil {
		return nil, err
	}
	res, err := c.coordinator.commit(ctx, t)
	if err != nil {
		return nil, err
	}
	return &ConversionResult{EntryResult: *res, HP: amountHP, INR: inr}, nil
}
