// Package unlock decides how each input of a transaction is unlocked: with a
// plain signature from the key service, or by calling a function of a
// registered contract.
package unlock

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/contract"
	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/registry"
	"github.com/bitfsorg/libcashtx-go/tx"
)

// KeyService returns the raw 32-byte private key controlling an address.
// Implementations return an error wrapping ErrKeyNotFound, or nil bytes,
// when no key is held.
type KeyService interface {
	FetchPrivateKey(ctx context.Context, address string) ([]byte, error)
}

// ContractRegistry looks up instantiated contracts by address.
type ContractRegistry interface {
	GetContract(ctx context.Context, address string) (*registry.Contract, error)
}

// KeyRef is a sig argument value naming the address whose key signs. The key
// is fetched from the key service at resolve time.
type KeyRef struct {
	Address string
}

// Resolver implements tx.Resolver.
type Resolver struct {
	Keys     KeyService
	Registry ContractRegistry
	Params   *chaincfg.Params
	Logger   zerolog.Logger
}

var _ tx.Resolver = (*Resolver)(nil)

// NewResolver creates a Resolver backed by a key service and contract registry.
// Either may be nil when the corresponding input kind is never spent.
func NewResolver(keys KeyService, reg ContractRegistry, params *chaincfg.Params) *Resolver {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &Resolver{Keys: keys, Registry: reg, Params: params, Logger: log.Unlock}
}

// Resolve returns the unlocking strategy for utxo. Inputs without contract
// metadata get a PlainSignature; contract inputs get a ContractCall for the
// function named in call.
func (r *Resolver) Resolve(ctx context.Context, utxo *tx.UTXO, call *tx.CallContext) (tx.UnlockingStrategy, error) {
	if utxo == nil {
		return nil, fmt.Errorf("%w: nil utxo", tx.ErrNilParam)
	}
	if utxo.Contract == nil {
		return r.resolvePlain(ctx, utxo)
	}
	return r.resolveContract(ctx, utxo, call)
}

func (r *Resolver) resolvePlain(ctx context.Context, utxo *tx.UTXO) (tx.UnlockingStrategy, error) {
	raw := utxo.PrivateKey
	if len(raw) == 0 {
		var err error
		raw, err = r.fetchKey(ctx, utxo.Address)
		if err != nil {
			return nil, err
		}
	}
	key, err := parseKey(utxo.Address, raw)
	if err != nil {
		return nil, err
	}

	// The key must control the output it is about to sign for.
	want, err := tx.AddressLockingBytecode(utxo.Address, r.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyResolution, utxo.Address, err)
	}
	got, err := tx.BuildP2PKHScript(key.PubKey())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyResolution, err)
	}
	if !bytes.Equal(want, got) {
		return nil, fmt.Errorf("%w: key does not control %s", ErrKeyResolution, utxo.Address)
	}

	r.Logger.Debug().Str("outpoint", utxo.Outpoint().String()).Msg("plain signature")
	return &tx.PlainSignature{Key: key}, nil
}

func (r *Resolver) resolveContract(ctx context.Context, utxo *tx.UTXO, call *tx.CallContext) (tx.UnlockingStrategy, error) {
	if call == nil || call.Function == "" {
		return nil, fmt.Errorf("%w: no function named for contract input %s",
			ErrAbiFunctionNotFound, utxo.Outpoint())
	}

	artifact, redeem, err := r.loadContract(ctx, utxo.Contract)
	if err != nil {
		return nil, err
	}

	fn, index, err := artifact.Function(call.Function)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrAbiFunctionNotFound, artifact.ContractName, call.Function)
	}

	// Names first, so a missing argument never reaches a key lookup.
	for _, in := range fn.Inputs {
		if _, ok := call.Args[in.Name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s: missing argument %q",
				ErrArgumentTypeMismatch, artifact.ContractName, fn.Name, in.Name)
		}
	}

	values := make(map[string]interface{}, len(fn.Inputs))
	for _, in := range fn.Inputs {
		v := call.Args[in.Name]
		if ref, ok := v.(KeyRef); ok {
			if in.Type != "sig" {
				return nil, fmt.Errorf("%w: %s: key reference for %s argument",
					ErrArgumentTypeMismatch, in.Name, in.Type)
			}
			raw, err := r.fetchKey(ctx, ref.Address)
			if err != nil {
				return nil, err
			}
			v = raw
		}
		values[in.Name] = v
	}

	args, err := contract.CoerceNamed(fn.Inputs, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrArgumentTypeMismatch, artifact.ContractName, fn.Name, err)
	}

	cc := &tx.ContractCall{
		Contract:     artifact.ContractName,
		Function:     fn.Name,
		Args:         make([]tx.ContractArg, len(args)),
		RedeemScript: redeem,
	}
	for i, a := range args {
		ca := tx.ContractArg{Name: a.Name}
		if a.Kind == contract.KindSig {
			ca.Signer = a.Signer
		} else {
			ca.Data, err = a.Data()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrArgumentTypeMismatch, err)
			}
		}
		cc.Args[i] = ca
	}
	if artifact.NeedsSelector() {
		cc.Selector = contract.Selector(index)
	}

	r.Logger.Debug().
		Str("outpoint", utxo.Outpoint().String()).
		Str("contract", cc.Contract).
		Str("function", cc.Function).
		Msg("contract call")
	return cc, nil
}

// loadContract returns the artifact and redeem script for a contract input,
// preferring metadata carried on the UTXO over the registry.
func (r *Resolver) loadContract(ctx context.Context, meta *tx.ContractMeta) (*contract.Artifact, []byte, error) {
	artifact := meta.Artifact
	redeem := meta.RedeemScript
	args := meta.ConstructorArgs

	if artifact == nil || (len(redeem) == 0 && args == nil) {
		if r.Registry == nil {
			return nil, nil, fmt.Errorf("%w: %s (no registry)", ErrContractNotFound, meta.Address)
		}
		c, err := r.Registry.GetContract(ctx, meta.Address)
		if errors.Is(err, registry.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrContractNotFound, meta.Address)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrContractResolution, meta.Address, err)
		}
		artifact = c.Artifact
		if len(redeem) == 0 {
			redeem, err = c.Redeem()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrContractResolution, err)
			}
		}
	}
	if artifact == nil {
		return nil, nil, fmt.Errorf("%w: %s has no artifact", ErrContractNotFound, meta.Address)
	}

	if len(redeem) == 0 {
		var err error
		redeem, err = contract.RedeemScriptFromValues(artifact, args)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: constructor arguments: %w", ErrArgumentTypeMismatch, err)
		}
	}

	if meta.Address != "" {
		if err := r.checkRedeem(meta.Address, redeem); err != nil {
			return nil, nil, err
		}
	}
	return artifact, redeem, nil
}

// checkRedeem verifies that redeem hashes to the contract address, either
// as a 20-byte or a 32-byte script hash.
func (r *Resolver) checkRedeem(address string, redeem []byte) error {
	want, err := tx.AddressLockingBytecode(address, r.Params)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrContractResolution, address, err)
	}
	if !bytes.Equal(want, contract.LockingBytecode(redeem, false)) &&
		!bytes.Equal(want, contract.LockingBytecode(redeem, true)) {
		return fmt.Errorf("%w: redeem script does not match %s", ErrContractResolution, address)
	}
	return nil
}

func (r *Resolver) fetchKey(ctx context.Context, address string) ([]byte, error) {
	if r.Keys == nil {
		return nil, fmt.Errorf("%w: %s (no key service)", ErrKeyNotFound, address)
	}
	raw, err := r.Keys.FetchPrivateKey(ctx, address)
	if err != nil {
		if errors.Is(err, ErrKeyResolution) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyNotFound, address, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, address)
	}
	return raw, nil
}

func parseKey(address string, raw []byte) (*ec.PrivateKey, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: %s: key is %d bytes", ErrKeyNotFound, address, len(raw))
	}
	key, _ := ec.PrivateKeyFromBytes(raw)
	return key, nil
}
