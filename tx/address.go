package tx

import (
	"fmt"
	"strings"

	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchutil"
	"github.com/gcash/bchutil/bech32"
)

// CashAddr type bits (version byte >> 3). Types 2 and 3 are the token-aware
// variants of P2PKH and P2SH.
const (
	CashAddrP2PKH      = 0
	CashAddrP2SH       = 1
	CashAddrTokenP2PKH = 2
	CashAddrTokenP2SH  = 3
)

// cashAddrHashSizes maps the version byte size bits to hash lengths.
var cashAddrHashSizes = [8]int{20, 24, 28, 32, 40, 48, 56, 64}

// NetworkParams returns the chain parameters for a network name. Chipnet and
// testnet4 share the testnet address encoding.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "chipnet", "testnet4", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("tx: unknown network %q", network)
}

// DecodeAddress parses a CashAddr (with or without prefix) or legacy address.
// Token-aware CashAddrs are rejected since bchutil would read them as P2PKH.
func DecodeAddress(addr string, params *chaincfg.Params) (bchutil.Address, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	if typ, _, err := DecodeCashAddr(addr, params); err == nil && typ > CashAddrP2SH {
		return nil, fmt.Errorf("%w: %s: token-aware address type %d", ErrInvalidAddress, addr, typ)
	}
	a, err := bchutil.DecodeAddress(addr, params)
	if err != nil && !strings.Contains(addr, ":") {
		a, err = bchutil.DecodeAddress(params.CashAddressPrefix+":"+addr, params)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}
	if !a.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, params.Name)
	}
	return a, nil
}

// AddressLockingBytecode returns the locking bytecode paying to addr.
// CashAddrs are decoded from their payload so P2SH32 and token-aware types
// work; legacy addresses go through bchutil.
func AddressLockingBytecode(addr string, params *chaincfg.Params) ([]byte, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	if typ, hash, err := DecodeCashAddr(addr, params); err == nil {
		return cashAddrLockingBytecode(addr, typ, hash)
	}
	a, err := DecodeAddress(addr, params)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}
	return script, nil
}

// P2PKHAddress returns the prefixed CashAddr for a serialized public key.
func P2PKHAddress(pubKey []byte, params *chaincfg.Params) (string, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	a, err := bchutil.NewAddressPubKeyHash(bsvhash.Hash160(pubKey), params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	return withPrefix(a.EncodeAddress(), params), nil
}

// P2SHAddress returns the prefixed CashAddr of a 20-byte script hash address
// for a redeem script.
func P2SHAddress(redeemScript []byte, params *chaincfg.Params) (string, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	a, err := bchutil.NewAddressScriptHash(redeemScript, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	return withPrefix(a.EncodeAddress(), params), nil
}

// P2SH32Address returns the prefixed CashAddr of the 32-byte (hash256)
// script hash address for a redeem script.
func P2SH32Address(redeemScript []byte, params *chaincfg.Params) (string, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return EncodeCashAddr(params.CashAddressPrefix, CashAddrP2SH, bsvhash.Sha256d(redeemScript))
}

// DecodeCashAddr returns the type bits and hash of a CashAddr of any hash
// size. The prefix may be omitted; when present it must match params.
func DecodeCashAddr(addr string, params *chaincfg.Params) (int, []byte, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	if !strings.Contains(addr, ":") {
		addr = params.CashAddressPrefix + ":" + addr
	}
	prefix, values, err := bchutil.DecodeCashAddress(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}
	if prefix != params.CashAddressPrefix {
		return 0, nil, fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, params.Name)
	}
	data, err := bech32.ConvertBits(values, 5, 8, false)
	if err != nil || len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: %s: bad payload", ErrInvalidAddress, addr)
	}
	version, hash := data[0], data[1:]
	if version&0x80 != 0 {
		return 0, nil, fmt.Errorf("%w: %s: reserved version bit", ErrInvalidAddress, addr)
	}
	if len(hash) != cashAddrHashSizes[version&0x07] {
		return 0, nil, fmt.Errorf("%w: %s: hash is %d bytes, version says %d",
			ErrInvalidAddress, addr, len(hash), cashAddrHashSizes[version&0x07])
	}
	return int(version >> 3), hash, nil
}

// EncodeCashAddr encodes a hash as a prefixed CashAddr of the given type.
func EncodeCashAddr(prefix string, typ int, hash []byte) (string, error) {
	size := -1
	for i, n := range cashAddrHashSizes {
		if n == len(hash) {
			size = i
		}
	}
	if size < 0 || typ < 0 || typ > 15 {
		return "", fmt.Errorf("%w: cannot encode type %d with %d-byte hash", ErrInvalidAddress, typ, len(hash))
	}
	payload, err := bech32.ConvertBits(append([]byte{byte(typ<<3 | size)}, hash...), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	mod := cashAddrPolymod(append(append(expandPrefix(prefix), payload...), make([]byte, 8)...))
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	for _, v := range payload {
		b.WriteByte(bchutil.Charset[v])
	}
	for i := 0; i < 8; i++ {
		b.WriteByte(bchutil.Charset[(mod>>(5*(7-i)))&0x1f])
	}
	return b.String(), nil
}

func cashAddrLockingBytecode(addr string, typ int, hash []byte) ([]byte, error) {
	switch {
	case (typ == CashAddrP2PKH || typ == CashAddrTokenP2PKH) && len(hash) == 20:
		out := append([]byte{txscript.OP_DUP, txscript.OP_HASH160, 20}, hash...)
		return append(out, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG), nil
	case (typ == CashAddrP2SH || typ == CashAddrTokenP2SH) && len(hash) == 20:
		out := append([]byte{txscript.OP_HASH160, 20}, hash...)
		return append(out, txscript.OP_EQUAL), nil
	case (typ == CashAddrP2SH || typ == CashAddrTokenP2SH) && len(hash) == 32:
		out := append([]byte{txscript.OP_HASH256, 32}, hash...)
		return append(out, txscript.OP_EQUAL), nil
	}
	return nil, fmt.Errorf("%w: %s: unsupported type %d with %d-byte hash", ErrInvalidAddress, addr, typ, len(hash))
}

func expandPrefix(prefix string) []byte {
	out := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		out = append(out, prefix[i]&0x1f)
	}
	return append(out, 0)
}

// cashAddrPolymod is the BCH code checksum over 5-bit values.
func cashAddrPolymod(v []byte) uint64 {
	c := uint64(1)
	for _, d := range v {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func withPrefix(addr string, params *chaincfg.Params) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return params.CashAddressPrefix + ":" + addr
}
