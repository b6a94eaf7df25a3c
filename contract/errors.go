package contract

import "errors"

var (
	// ErrInvalidArtifact indicates the artifact JSON is malformed or incomplete.
	ErrInvalidArtifact = errors.New("contract: invalid artifact")

	// ErrInvalidASM indicates the artifact bytecode could not be assembled.
	ErrInvalidASM = errors.New("contract: invalid bytecode asm")

	// ErrUnknownOpcode indicates an ASM token names an opcode that does not exist.
	ErrUnknownOpcode = errors.New("contract: unknown opcode")

	// ErrTypeMismatch indicates an argument value cannot be coerced to its declared type.
	ErrTypeMismatch = errors.New("contract: argument type mismatch")

	// ErrMissingArgument indicates a declared argument has no supplied value.
	ErrMissingArgument = errors.New("contract: missing argument")

	// ErrFunctionNotFound indicates the ABI has no function with the requested name.
	ErrFunctionNotFound = errors.New("contract: abi function not found")

	// ErrNotEncodable indicates a signature argument was encoded before signing.
	ErrNotEncodable = errors.New("contract: signature arguments are produced at signing time")
)
