// Package contract models compiled CashScript contracts: artifacts, ABI
// functions and the encoding rules that turn caller-supplied arguments into
// script pushes.
//
// Artifacts are declarative. The redeem script of an instance is rebuilt from
// the artifact's bytecode and the instance's constructor arguments; stored
// source text is carried for reference only and never evaluated.
package contract

import (
	"encoding/json"
	"fmt"
)

// ABIInput is one typed parameter of a constructor or function.
type ABIInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ABIFunction is one spendable entry point of a contract.
type ABIFunction struct {
	Name   string     `json:"name"`
	Inputs []ABIInput `json:"inputs"`
}

// Compiler identifies the compiler that produced an artifact.
type Compiler struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Artifact is a compiled contract as emitted by cashc.
type Artifact struct {
	ContractName      string        `json:"contractName"`
	ConstructorInputs []ABIInput    `json:"constructorInputs"`
	ABI               []ABIFunction `json:"abi"`
	Bytecode          string        `json:"bytecode"` // ASM, without constructor arguments
	Source            string        `json:"source,omitempty"`
	Compiler          Compiler      `json:"compiler"`
	UpdatedAt         string        `json:"updatedAt,omitempty"`
}

// ParseArtifact decodes and validates an artifact JSON document.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks that the artifact has a name, bytecode and at least one
// uniquely named function.
func (a *Artifact) Validate() error {
	if a.ContractName == "" {
		return fmt.Errorf("%w: missing contractName", ErrInvalidArtifact)
	}
	if a.Bytecode == "" {
		return fmt.Errorf("%w: missing bytecode", ErrInvalidArtifact)
	}
	if len(a.ABI) == 0 {
		return fmt.Errorf("%w: abi has no functions", ErrInvalidArtifact)
	}
	seen := make(map[string]bool, len(a.ABI))
	for _, fn := range a.ABI {
		if fn.Name == "" {
			return fmt.Errorf("%w: unnamed abi function", ErrInvalidArtifact)
		}
		if seen[fn.Name] {
			return fmt.Errorf("%w: duplicate abi function %q", ErrInvalidArtifact, fn.Name)
		}
		seen[fn.Name] = true
	}
	return nil
}

// Function returns the named ABI function and its index in the ABI.
func (a *Artifact) Function(name string) (*ABIFunction, int, error) {
	for i := range a.ABI {
		if a.ABI[i].Name == name {
			return &a.ABI[i], i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s.%s", ErrFunctionNotFound, a.ContractName, name)
}

// NeedsSelector reports whether unlocking bytecode must carry a function
// selector. Single-function contracts are called without one.
func (a *Artifact) NeedsSelector() bool {
	return len(a.ABI) > 1
}
