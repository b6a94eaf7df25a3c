package tx

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"

	"github.com/bitfsorg/libcashtx-go/contract"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// BuildP2PKHScript creates a P2PKH locking script for the given public key.
func BuildP2PKHScript(pubKey *ec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(pubKey, true)
	if err != nil {
		return nil, fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	lockScript, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock script: %w", ErrScriptBuild, err)
	}
	return []byte(*lockScript), nil
}

// signDigest signs a sighash digest and appends the sighash type byte.
func signDigest(key *ec.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return append(sig.Serialize(), byte(SigHashAllForkID)), nil
}

// unlockInput produces the unlocking bytecode for input idx of t according
// to its strategy. All outputs must already be in place.
func unlockInput(t *transaction.Transaction, idx int, utxo *UTXO, strategy UnlockingStrategy) ([]byte, error) {
	spent := SpentOutput{Satoshis: utxo.Satoshis, Token: utxo.Token}

	switch s := strategy.(type) {
	case *PlainSignature:
		if s.Key == nil {
			return nil, fmt.Errorf("%w: input %d has no signing key", ErrSigningFailed, idx)
		}
		pub := s.Key.PubKey()
		scriptCode, err := BuildP2PKHScript(pub)
		if err != nil {
			return nil, err
		}
		digest, err := SignatureHash(t, idx, scriptCode, spent, SigHashAllForkID)
		if err != nil {
			return nil, err
		}
		sig, err := signDigest(s.Key, digest)
		if err != nil {
			return nil, err
		}
		unlock := contract.EncodeDataPush(sig)
		return append(unlock, contract.EncodeDataPush(pub.Compressed())...), nil

	case *ContractCall:
		if len(s.RedeemScript) == 0 {
			return nil, fmt.Errorf("%w: input %d contract call has no redeem script", ErrSigningFailed, idx)
		}
		var digest []byte
		var unlock []byte
		for i := len(s.Args) - 1; i >= 0; i-- {
			arg := s.Args[i]
			data := arg.Data
			if arg.IsSignature() {
				if digest == nil {
					d, err := SignatureHash(t, idx, s.RedeemScript, spent, SigHashAllForkID)
					if err != nil {
						return nil, err
					}
					digest = d
				}
				sig, err := signDigest(arg.Signer, digest)
				if err != nil {
					return nil, err
				}
				data = sig
			}
			unlock = append(unlock, contract.EncodeDataPush(data)...)
		}
		unlock = append(unlock, s.Selector...)
		return append(unlock, contract.EncodeDataPush(s.RedeemScript)...), nil

	case nil:
		return nil, fmt.Errorf("%w: input %d has no unlocking strategy", ErrSigningFailed, idx)
	default:
		return nil, fmt.Errorf("%w: input %d has unsupported strategy %T", ErrSigningFailed, idx, strategy)
	}
}

// signAll sets the unlocking script of every input.
func signAll(t *transaction.Transaction, inputs []*UTXO, strategies []UnlockingStrategy) error {
	for i, utxo := range inputs {
		unlock, err := unlockInput(t, i, utxo, strategies[i])
		if err != nil {
			return err
		}
		t.Inputs[i].UnlockingScript = script.NewFromBytes(unlock)
	}
	return nil
}
