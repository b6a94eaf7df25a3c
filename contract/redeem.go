package contract

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

const (
	opEqual   = 0x87
	opHash160 = 0xa9
	opHash256 = 0xaa
)

// RedeemScript rebuilds a contract instance's redeem script from the
// artifact bytecode and its coerced constructor arguments. Arguments are
// pushed in reverse declaration order ahead of the bytecode.
func RedeemScript(a *Artifact, args []Arg) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrInvalidArtifact)
	}
	if len(args) != len(a.ConstructorInputs) {
		return nil, fmt.Errorf("%w: %s expects %d constructor arguments, got %d",
			ErrMissingArgument, a.ContractName, len(a.ConstructorInputs), len(args))
	}
	body, err := AssembleASM(a.Bytecode)
	if err != nil {
		return nil, err
	}

	var out []byte
	for i := len(args) - 1; i >= 0; i-- {
		push, err := args[i].Push()
		if err != nil {
			return nil, err
		}
		out = append(out, push...)
	}
	return append(out, body...), nil
}

// RedeemScriptFromValues coerces positional constructor values and builds the
// redeem script.
func RedeemScriptFromValues(a *Artifact, values []interface{}) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrInvalidArtifact)
	}
	args, err := CoerceAll(a.ConstructorInputs, values)
	if err != nil {
		return nil, err
	}
	return RedeemScript(a, args)
}

// LockingBytecode returns the P2SH locking bytecode for a redeem script:
// OP_HASH160 <hash160> OP_EQUAL, or OP_HASH256 <hash256> OP_EQUAL when
// p2sh32 is set.
func LockingBytecode(redeem []byte, p2sh32 bool) []byte {
	if p2sh32 {
		h := chainhash.DoubleHashB(redeem)
		out := append([]byte{opHash256, byte(len(h))}, h...)
		return append(out, opEqual)
	}
	h := bsvhash.Hash160(redeem)
	out := append([]byte{opHash160, byte(len(h))}, h...)
	return append(out, opEqual)
}

// Selector returns the function selector push for the ABI function at index.
func Selector(index int) []byte {
	return EncodeDataPush(EncodeInt(int64(index)))
}
