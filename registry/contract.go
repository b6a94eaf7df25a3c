package registry

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gcash/bchd/chaincfg"

	"github.com/bitfsorg/libcashtx-go/contract"
	"github.com/bitfsorg/libcashtx-go/tx"
)

// RedeemScript is the persisted form of a contract instance's redeem script:
// the script hex plus the constructor arguments it was derived from.
type RedeemScript struct {
	Hex             string        `json:"hex,omitempty"`
	ConstructorArgs []interface{} `json:"constructorArgs"`
}

// Contract is one row of the contracts table.
type Contract struct {
	Name         string
	Address      string
	TokenAddress string
	OpCount      int
	ByteSize     int
	Bytecode     string
	Balance      uint64
	UTXOs        []tx.UTXO
	Artifact     *contract.Artifact
	ABI          []contract.ABIFunction
	RedeemScript RedeemScript
}

// Redeem returns the redeem script bytes, rebuilding them from the artifact
// and constructor arguments when no hex was stored.
func (c *Contract) Redeem() ([]byte, error) {
	if c.RedeemScript.Hex != "" {
		b, err := hex.DecodeString(c.RedeemScript.Hex)
		if err != nil {
			return nil, fmt.Errorf("%w: redeem script hex: %w", ErrInvalidContract, err)
		}
		return b, nil
	}
	if c.Artifact == nil {
		return nil, fmt.Errorf("%w: %s has no artifact", ErrInvalidContract, c.Address)
	}
	return contract.RedeemScriptFromValues(c.Artifact, c.RedeemScript.ConstructorArgs)
}

// Instantiate derives a contract instance from an artifact and constructor
// arguments: its redeem script, P2SH address and size statistics.
func Instantiate(artifact *contract.Artifact, args []interface{}, params *chaincfg.Params) (*Contract, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrInvalidContract)
	}
	coerced, err := contract.CoerceAll(artifact.ConstructorInputs, args)
	if err != nil {
		return nil, err
	}
	redeem, err := contract.RedeemScript(artifact, coerced)
	if err != nil {
		return nil, err
	}
	addr, err := tx.P2SHAddress(redeem, params)
	if err != nil {
		return nil, err
	}
	return &Contract{
		Name:         artifact.ContractName,
		Address:      addr,
		TokenAddress: addr,
		OpCount:      len(strings.Fields(artifact.Bytecode)),
		ByteSize:     len(redeem),
		Bytecode:     hex.EncodeToString(redeem),
		Artifact:     artifact,
		ABI:          artifact.ABI,
		RedeemScript: RedeemScript{
			Hex:             hex.EncodeToString(redeem),
			ConstructorArgs: storedArgs(coerced),
		},
	}, nil
}

// storedArgs renders coerced constructor arguments in a JSON form that
// Coerce accepts back: decimal strings for integers, hex for byte strings.
func storedArgs(args []contract.Arg) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch a.Kind {
		case contract.KindInt:
			out[i] = a.Int.String()
		case contract.KindBool:
			out[i] = a.Bool
		default:
			if a.Type == "string" {
				out[i] = string(a.Bytes)
			} else {
				out[i] = hex.EncodeToString(a.Bytes)
			}
		}
	}
	return out
}

func (c *Contract) validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil contract", ErrInvalidContract)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidContract)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: %s: missing contract name", ErrInvalidContract, c.Address)
	}
	if c.Artifact == nil {
		return fmt.Errorf("%w: %s: missing artifact", ErrInvalidContract, c.Address)
	}
	return nil
}
