package tx

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTokenPrefix_Vectors(t *testing.T) {
	cat := strings.Repeat("bb", 32)
	catHex := strings.Repeat("bb", 32)

	tests := []struct {
		name  string
		token *Token
		want  string
	}{
		{"fungible small", &Token{Category: cat, Amount: 252}, "ef" + catHex + "10" + "fc"},
		{"fungible compactsize", &Token{Category: cat, Amount: 253}, "ef" + catHex + "10" + "fdfd00"},
		{"immutable nft with commitment", &Token{Category: cat, NFT: &NFT{Commitment: []byte{0xcc}}}, "ef" + catHex + "60" + "01cc"},
		{"mutable nft no commitment", &Token{Category: cat, NFT: &NFT{Capability: CapabilityMutable}}, "ef" + catHex + "21"},
		{"minting nft and amount", &Token{Category: cat, Amount: 1000, NFT: &NFT{Capability: CapabilityMinting}}, "ef" + catHex + "32" + "fde803"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeTokenPrefix(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got))
		})
	}
}

func TestEncodeTokenPrefix_CategoryByteOrder(t *testing.T) {
	cat := "01" + strings.Repeat("00", 31)
	prefix, err := EncodeTokenPrefix(&Token{Category: cat, Amount: 1})
	require.NoError(t, err)
	// Display order is reversed on the wire.
	assert.Equal(t, byte(0x01), prefix[32])
	assert.Equal(t, byte(0x00), prefix[1])
}

func TestTokenPrefix_RoundTrip(t *testing.T) {
	lock := []byte{0x76, 0xa9, 0x14}
	lock = append(lock, bytes.Repeat([]byte{0x11}, 20)...)
	lock = append(lock, 0x88, 0xac)

	tokens := []*Token{
		{Category: testTxID("ab"), Amount: 1},
		{Category: testTxID("cd"), Amount: 1 << 40},
		{Category: testTxID("ef"), NFT: &NFT{Capability: CapabilityNone, Commitment: bytes.Repeat([]byte{7}, MaxCommitmentLen)}},
		{Category: testTxID("01"), Amount: 5, NFT: &NFT{Capability: CapabilityMutable, Commitment: []byte("hi")}},
	}
	for _, tok := range tokens {
		prefix, err := EncodeTokenPrefix(tok)
		require.NoError(t, err)

		got, rest, err := DecodeTokenPrefix(append(prefix, lock...))
		require.NoError(t, err)
		assert.Equal(t, tok, got)
		assert.Equal(t, lock, rest)
	}
}

func TestDecodeTokenPrefix_NoPrefix(t *testing.T) {
	lock := []byte{0xa9, 0x14}
	tok, rest, err := DecodeTokenPrefix(lock)
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Equal(t, lock, rest)
}

func TestDecodeTokenPrefix_Invalid(t *testing.T) {
	cat := bytes.Repeat([]byte{0xbb}, 32)
	build := func(rest ...byte) []byte {
		b := append([]byte{TokenPrefixByte}, cat...)
		return append(b, rest...)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", []byte{TokenPrefixByte, 0x01}},
		{"reserved bit", build(0x90, 0x01)},
		{"capability without nft", build(0x11, 0x01)},
		{"zero amount", build(0x10, 0x00)},
		{"empty commitment", build(0x60, 0x00)},
		{"no nft no amount", build(0x00)},
		{"missing amount", build(0x10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeTokenPrefix(tt.data)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.ErrorIs(t, err, ErrInput)
		})
	}
}

func TestValidateToken(t *testing.T) {
	assert.ErrorIs(t, ValidateToken(nil), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(&Token{Category: "abcd", Amount: 1}), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(&Token{Category: testTxID("zz"), Amount: 1}), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(&Token{Category: testTxID("aa")}), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(&Token{Category: testTxID("aa"), NFT: &NFT{Commitment: make([]byte, 41)}}), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(&Token{Category: testTxID("aa"), NFT: &NFT{Capability: 3}}), ErrInvalidToken)
	assert.NoError(t, ValidateToken(&Token{Category: testTxID("aa"), NFT: &NFT{}}))
}

func TestTokenClone(t *testing.T) {
	orig := &Token{Category: testTxID("aa"), Amount: 3, NFT: &NFT{Commitment: []byte{1}}}
	c := orig.Clone()
	c.NFT.Commitment[0] = 9
	c.Amount = 4
	assert.Equal(t, byte(1), orig.NFT.Commitment[0])
	assert.Equal(t, uint64(3), orig.Amount)
	assert.Nil(t, (*Token)(nil).Clone())
}

func TestParseCapability(t *testing.T) {
	for _, c := range []Capability{CapabilityNone, CapabilityMutable, CapabilityMinting} {
		got, err := ParseCapability(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCapability("burnable")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
