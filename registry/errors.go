package registry

import "errors"

var (
	// ErrNotFound indicates no contract is registered at the address.
	ErrNotFound = errors.New("registry: contract not found")

	// ErrInvalidContract indicates a contract record is missing required fields.
	ErrInvalidContract = errors.New("registry: invalid contract")

	// ErrNilDB indicates a nil database handle was supplied.
	ErrNilDB = errors.New("registry: nil database")
)
