package tx

import (
	"bytes"
	"fmt"
	"math"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/gcash/bchd/wire"
)

// Token prefix layout constants.
const (
	TokenPrefixByte = 0xef

	tokenHasCommitmentLength = 0x40
	tokenHasNFT              = 0x20
	tokenHasAmount           = 0x10
	tokenReservedBit         = 0x80
	tokenCapabilityMask      = 0x0f

	MaxCommitmentLen = 40
	CategoryLen      = 32
)

// ValidateToken checks category length, commitment size, amount range and
// that the token carries at least an NFT or a fungible amount.
func ValidateToken(t *Token) error {
	if t == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidToken)
	}
	if _, err := categoryBytes(t.Category); err != nil {
		return err
	}
	if t.Amount > math.MaxInt64 {
		return fmt.Errorf("%w: amount %d exceeds maximum", ErrInvalidToken, t.Amount)
	}
	if t.NFT == nil {
		if t.Amount == 0 {
			return fmt.Errorf("%w: token has neither amount nor NFT", ErrInvalidToken)
		}
		return nil
	}
	if t.NFT.Capability > CapabilityMinting {
		return fmt.Errorf("%w: capability %d", ErrInvalidToken, t.NFT.Capability)
	}
	if len(t.NFT.Commitment) > MaxCommitmentLen {
		return fmt.Errorf("%w: commitment is %d bytes, max %d", ErrInvalidToken, len(t.NFT.Commitment), MaxCommitmentLen)
	}
	return nil
}

// categoryBytes converts a display-hex category id to internal byte order.
func categoryBytes(category string) ([]byte, error) {
	if len(category) != CategoryLen*2 {
		return nil, fmt.Errorf("%w: category must be %d bytes", ErrInvalidToken, CategoryLen)
	}
	h, err := chainhash.NewHashFromHex(category)
	if err != nil {
		return nil, fmt.Errorf("%w: category: %w", ErrInvalidToken, err)
	}
	return h.CloneBytes(), nil
}

// EncodeTokenPrefix serializes token data as the prefix that precedes an
// output's locking bytecode.
func EncodeTokenPrefix(t *Token) ([]byte, error) {
	if err := ValidateToken(t); err != nil {
		return nil, err
	}
	cat, _ := categoryBytes(t.Category)

	var bitfield byte
	if t.NFT != nil {
		bitfield |= tokenHasNFT | byte(t.NFT.Capability)
		if len(t.NFT.Commitment) > 0 {
			bitfield |= tokenHasCommitmentLength
		}
	}
	if t.Amount > 0 {
		bitfield |= tokenHasAmount
	}

	var buf bytes.Buffer
	buf.WriteByte(TokenPrefixByte)
	buf.Write(cat)
	buf.WriteByte(bitfield)
	if bitfield&tokenHasCommitmentLength != 0 {
		if err := wire.WriteVarBytes(&buf, 0, t.NFT.Commitment); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
		}
	}
	if bitfield&tokenHasAmount != 0 {
		if err := wire.WriteVarInt(&buf, 0, t.Amount); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeTokenPrefix splits output bytecode into token data and the locking
// bytecode that follows it. Bytecode without a token prefix returns a nil token.
func DecodeTokenPrefix(b []byte) (*Token, []byte, error) {
	if len(b) == 0 || b[0] != TokenPrefixByte {
		return nil, b, nil
	}
	if len(b) < 1+CategoryLen+1 {
		return nil, nil, fmt.Errorf("%w: truncated prefix", ErrInvalidToken)
	}
	var cat chainhash.Hash
	copy(cat[:], b[1:1+CategoryLen])
	bitfield := b[1+CategoryLen]
	if bitfield&tokenReservedBit != 0 {
		return nil, nil, fmt.Errorf("%w: reserved bit set", ErrInvalidToken)
	}

	t := &Token{Category: cat.String()}
	r := bytes.NewReader(b[2+CategoryLen:])

	hasNFT := bitfield&tokenHasNFT != 0
	capability := Capability(bitfield & tokenCapabilityMask)
	if !hasNFT && (capability != 0 || bitfield&tokenHasCommitmentLength != 0) {
		return nil, nil, fmt.Errorf("%w: NFT fields without NFT bit", ErrInvalidToken)
	}
	if hasNFT {
		t.NFT = &NFT{Capability: capability}
	}
	if bitfield&tokenHasCommitmentLength != 0 {
		commitment, err := wire.ReadVarBytes(r, 0, MaxCommitmentLen, "commitment")
		if err != nil {
			return nil, nil, fmt.Errorf("%w: commitment: %w", ErrInvalidToken, err)
		}
		if len(commitment) == 0 {
			return nil, nil, fmt.Errorf("%w: zero-length commitment", ErrInvalidToken)
		}
		t.NFT.Commitment = commitment
	}
	if bitfield&tokenHasAmount != 0 {
		amount, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: amount: %w", ErrInvalidToken, err)
		}
		if amount == 0 {
			return nil, nil, fmt.Errorf("%w: zero amount with amount bit", ErrInvalidToken)
		}
		t.Amount = amount
	}
	if err := ValidateToken(t); err != nil {
		return nil, nil, err
	}

	rest := b[len(b)-r.Len():]
	return t, rest, nil
}
