package tx

import (
	"context"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// UnlockingStrategy describes how one input is unlocked. It is either a
// *PlainSignature or a *ContractCall.
type UnlockingStrategy interface {
	isUnlockingStrategy()
}

// PlainSignature unlocks a pay-to-public-key-hash output with a single key.
type PlainSignature struct {
	Key *ec.PrivateKey
}

// ContractArg is one function argument of a contract call: literal push data,
// or a signature template when Signer is set.
type ContractArg struct {
	Name   string
	Data   []byte
	Signer *ec.PrivateKey
}

// IsSignature reports whether the argument is produced at signing time.
func (a ContractArg) IsSignature() bool {
	return a.Signer != nil
}

// ContractCall unlocks a pay-to-script-hash output by calling a contract
// function. Args are in declaration order. Selector is the encoded function
// selector push, empty for single-function contracts.
type ContractCall struct {
	Contract     string
	Function     string
	Args         []ContractArg
	Selector     []byte
	RedeemScript []byte
}

func (*PlainSignature) isUnlockingStrategy() {}
func (*ContractCall) isUnlockingStrategy()   {}

// CallContext names the contract function and its arguments for a contract input.
type CallContext struct {
	Function string
	Args     map[string]interface{}
}

// Resolver turns a UTXO and its call context into an unlocking strategy.
type Resolver interface {
	Resolve(ctx context.Context, utxo *UTXO, call *CallContext) (UnlockingStrategy, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, utxo *UTXO, call *CallContext) (UnlockingStrategy, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, utxo *UTXO, call *CallContext) (UnlockingStrategy, error) {
	return f(ctx, utxo, call)
}
