package application

import (
	"fmt"
	"math/big"
)

type ErrOracleUnavailable struct {
	Err error
}

func (e ErrOracleUnavailable) Error() string {
	return fmt.Sprintf("oracle unavailable: %s", e.Err)
}

type ErrNotEnoughValue struct {
	FiatValue *big.Int
	MinEntry  *big.Int
}

func (e ErrNotEnoughValue) Error() string {
	return fmt.Sprintf(
		"fiat value %s below minimum entry %s", e.FiatValue, e.MinEntry,
	)
}

type ErrRoundNotOpen struct{}

func (e ErrRoundNotOpen) Error() string {
	return "round is not open"
}

type ErrNotEligible struct {
	Reason string
}

func (e ErrNotEligible) Error() string {
	return fmt.Sprintf("round not eligible for draw: %s", e.Reason)
}

type ErrAlreadyCalculating struct{}

func (e ErrAlreadyCalculating) Error() string {
	return "draw already in progress"
}

type ErrUnknownRequest struct {
	RequestId string
}

func (e ErrUnknownRequest) Error() string {
	return fmt.Sprintf("unknown randomness request %s", e.RequestId)
}

type ErrPayoutFailed struct {
	Winner string
	Err    error
}

func (e ErrPayoutFailed) Error() string {
	return fmt.Sprintf("failed to pay out winner %s: %s", e.Winner, e.Err)
}
