package unlock

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyResolution is the root of signing-key lookup failures.
	ErrKeyResolution = errors.New("unlock: key resolution failed")

	// ErrContractResolution is the root of contract call resolution failures.
	ErrContractResolution = errors.New("unlock: contract resolution failed")
)

var (
	// ErrKeyNotFound indicates no usable private key exists for an address.
	ErrKeyNotFound = fmt.Errorf("%w: key not found", ErrKeyResolution)

	// ErrContractNotFound indicates the contract instance is not registered.
	ErrContractNotFound = fmt.Errorf("%w: contract not found", ErrContractResolution)

	// ErrAbiFunctionNotFound indicates the called function is not in the ABI.
	ErrAbiFunctionNotFound = fmt.Errorf("%w: abi function not found", ErrContractResolution)

	// ErrArgumentTypeMismatch indicates a function argument is missing or
	// cannot be coerced to its declared type.
	ErrArgumentTypeMismatch = fmt.Errorf("%w: argument type mismatch", ErrContractResolution)
)
