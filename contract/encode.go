package contract

import (
	"encoding/binary"
	"math/big"
)

// Push opcodes used by the minimal push encoder.
const (
	op0         = 0x00
	opPushData1 = 0x4c
	opPushData2 = 0x4d
	opPushData4 = 0x4e
	op1Negate   = 0x4f
	op1         = 0x51
)

// EncodeDataPush returns the minimal push of data: OP_0 for empty data,
// OP_1..OP_16 and OP_1NEGATE for the matching single bytes, a direct push up
// to 75 bytes, then OP_PUSHDATA1/2/4.
func EncodeDataPush(data []byte) []byte {
	n := len(data)
	switch {
	case n == 0:
		return []byte{op0}
	case n == 1 && data[0] >= 1 && data[0] <= 16:
		return []byte{op1 - 1 + data[0]}
	case n == 1 && data[0] == 0x81:
		return []byte{op1Negate}
	case n <= 75:
		return append([]byte{byte(n)}, data...)
	case n <= 0xff:
		return append([]byte{opPushData1, byte(n)}, data...)
	case n <= 0xffff:
		out := []byte{opPushData2, 0, 0}
		binary.LittleEndian.PutUint16(out[1:], uint16(n))
		return append(out, data...)
	default:
		out := []byte{opPushData4, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(out[1:], uint32(n))
		return append(out, data...)
	}
}

// EncodeScriptNum encodes n as a minimally-encoded little-endian
// sign-magnitude script number. Zero encodes as the empty byte string.
func EncodeScriptNum(n *big.Int) []byte {
	if n == nil || n.Sign() == 0 {
		return []byte{}
	}
	neg := n.Sign() < 0
	be := new(big.Int).Abs(n).Bytes()

	out := make([]byte, len(be), len(be)+1)
	for i := range be {
		out[i] = be[len(be)-1-i]
	}
	last := len(out) - 1
	switch {
	case out[last]&0x80 != 0 && neg:
		out = append(out, 0x80)
	case out[last]&0x80 != 0:
		out = append(out, 0x00)
	case neg:
		out[last] |= 0x80
	}
	return out
}

// DecodeScriptNum is the inverse of EncodeScriptNum.
func DecodeScriptNum(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	mag := make([]byte, len(b))
	for i := range b {
		mag[i] = b[len(b)-1-i]
	}
	neg := mag[0]&0x80 != 0
	mag[0] &^= 0x80
	n := new(big.Int).SetBytes(mag)
	if neg {
		n.Neg(n)
	}
	return n
}

// EncodeInt encodes a small integer as a script number.
func EncodeInt(n int64) []byte {
	return EncodeScriptNum(big.NewInt(n))
}

// EncodeBool encodes a boolean as a script number (1 or empty).
func EncodeBool(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return []byte{}
}
