package tx

import (
	"fmt"

	"github.com/bitfsorg/libcashtx-go/contract"
)

// Capability is the NFT capability carried in the token bitfield.
type Capability byte

const (
	CapabilityNone    Capability = 0x00
	CapabilityMutable Capability = 0x01
	CapabilityMinting Capability = 0x02
)

func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return "none"
	case CapabilityMutable:
		return "mutable"
	case CapabilityMinting:
		return "minting"
	default:
		return fmt.Sprintf("capability(%d)", byte(c))
	}
}

// ParseCapability converts the indexer's capability name.
func ParseCapability(s string) (Capability, error) {
	switch s {
	case "", "none":
		return CapabilityNone, nil
	case "mutable":
		return CapabilityMutable, nil
	case "minting":
		return CapabilityMinting, nil
	}
	return 0, fmt.Errorf("%w: unknown capability %q", ErrInvalidToken, s)
}

// NFT is the non-fungible part of a token.
type NFT struct {
	Capability Capability `json:"capability"`
	Commitment []byte     `json:"commitment,omitempty"` // at most 40 bytes
}

// Token is CashTokens data attached to an output.
type Token struct {
	Category string `json:"category"` // 32-byte category id, display hex
	Amount   uint64 `json:"amount"`   // fungible amount, 0 if none
	NFT      *NFT   `json:"nft,omitempty"`
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	if t.NFT != nil {
		nft := *t.NFT
		nft.Commitment = append([]byte(nil), t.NFT.Commitment...)
		c.NFT = &nft
	}
	return &c
}

// ContractMeta marks a UTXO as locked by a contract instance. When Artifact
// or RedeemScript are missing they are loaded from the contract registry by
// Address.
type ContractMeta struct {
	Address         string             `json:"address"`
	Artifact        *contract.Artifact `json:"artifact,omitempty"`
	RedeemScript    []byte             `json:"redeemScript,omitempty"`
	ConstructorArgs []interface{}      `json:"constructorArgs,omitempty"`
}

// Outpoint identifies a transaction output.
type Outpoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// UTXO is a spendable output selected by the caller.
type UTXO struct {
	Address  string        `json:"address"`
	TxID     string        `json:"txid"` // display hex
	Vout     uint32        `json:"vout"`
	Satoshis uint64        `json:"satoshis"`
	Height   int64         `json:"height,omitempty"`
	Token    *Token        `json:"token,omitempty"`
	Contract *ContractMeta `json:"contract,omitempty"`

	// PrivateKey optionally carries the 32-byte signing key. When set it is
	// used instead of the key service.
	PrivateKey []byte `json:"-"`
}

// Outpoint returns the output's outpoint.
func (u *UTXO) Outpoint() Outpoint {
	return Outpoint{TxID: u.TxID, Vout: u.Vout}
}
