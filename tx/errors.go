package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrInput is the root of all caller-input errors. Every error below that
	// describes a bad request wraps it.
	ErrInput = errors.New("tx: invalid input")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = fmt.Errorf("%w: required parameter is nil", ErrInput)

	// ErrInsufficientFunds indicates the inputs cannot cover outputs and fee.
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrInput)

	// ErrInvalidOutput indicates a malformed output specification.
	ErrInvalidOutput = fmt.Errorf("%w: invalid output", ErrInput)

	// ErrInvalidAddress indicates an address that cannot be decoded for the network.
	ErrInvalidAddress = fmt.Errorf("%w: invalid address", ErrInput)

	// ErrInvalidToken indicates malformed token data.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrInput)

	// ErrTokenBalance indicates token outputs are not covered by token inputs,
	// or an input NFT would be burned without consent.
	ErrTokenBalance = fmt.Errorf("%w: token balance", ErrInput)

	// ErrInvalidOPReturn indicates the OP_RETURN script is malformed.
	ErrInvalidOPReturn = errors.New("tx: invalid OP_RETURN format")

	// ErrFeeConvergence indicates the fee did not settle within the iteration budget.
	ErrFeeConvergence = errors.New("tx: fee did not converge")

	// ErrSigningFailed indicates transaction signing failed.
	ErrSigningFailed = errors.New("tx: signing failed")

	// ErrScriptBuild indicates script construction failed.
	ErrScriptBuild = errors.New("tx: script build failed")

	// ErrNoResolver indicates the builder has no unlocking resolver.
	ErrNoResolver = errors.New("tx: no unlocking resolver configured")
)
