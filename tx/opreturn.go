package tx

import (
	"fmt"

	"github.com/bitfsorg/libcashtx-go/contract"
	"github.com/gcash/bchd/wire"
)

const (
	// DustLimit is the minimum value of any emitted output in satoshis.
	DustLimit = uint64(546)

	// MaxSatoshis is the total money supply; no single amount may exceed it.
	MaxSatoshis = uint64(2_100_000_000_000_000)

	// DefaultFeePerByte is the default relay fee rate in sat/byte.
	DefaultFeePerByte = uint64(1)

	// DefaultMaxIterations bounds the fee convergence loop.
	DefaultMaxIterations = 3

	// MaxOPReturnSize is the standardness limit for data-carrier bytecode.
	MaxOPReturnSize = 223

	// CompressedPubKeyLen is the length of a compressed public key.
	CompressedPubKeyLen = 33

	// TxIDLen is the length of a transaction ID.
	TxIDLen = 32
)

// Serialized size bounds used for fee estimation.
const (
	txOverhead      = 10  // version(4) + locktime(4) + two one-byte counts
	p2pkhInputSize  = 149 // outpoint(36) + len(1) + sig push(74) + pubkey push(34) + sequence(4)
	p2pkhOutputSize = 34  // value(8) + len(1) + script(25)
	p2shOutputSize  = 32  // value(8) + len(1) + script(23)
	sigPushSize     = 74
)

const (
	opReturn = 0x6a
)

// BuildOPReturnScript creates an OP_RETURN data-carrier script from data
// pushes. Each push is minimally encoded.
func BuildOPReturnScript(pushes [][]byte) ([]byte, error) {
	s := []byte{opReturn}
	for _, push := range pushes {
		s = append(s, contract.EncodeDataPush(push)...)
	}
	if len(s) > MaxOPReturnSize {
		return nil, fmt.Errorf("%w: OP_RETURN script is %d bytes, max %d", ErrInvalidOutput, len(s), MaxOPReturnSize)
	}
	return s, nil
}

// ParseOPReturnScript extracts the data pushes of an OP_RETURN script.
func ParseOPReturnScript(s []byte) ([][]byte, error) {
	if len(s) == 0 || s[0] != opReturn {
		return nil, fmt.Errorf("%w: missing OP_RETURN", ErrInvalidOPReturn)
	}
	var pushes [][]byte
	for i := 1; i < len(s); {
		op := s[i]
		i++
		var n int
		switch {
		case op == 0x00:
			pushes = append(pushes, []byte{})
			continue
		case op >= 0x51 && op <= 0x60:
			pushes = append(pushes, []byte{op - 0x50})
			continue
		case op == 0x4f:
			pushes = append(pushes, []byte{0x81})
			continue
		case op <= 0x4b:
			n = int(op)
		case op == 0x4c && i+1 <= len(s):
			n = int(s[i])
			i++
		case op == 0x4d && i+2 <= len(s):
			n = int(s[i]) | int(s[i+1])<<8
			i += 2
		case op == 0x4e && i+4 <= len(s):
			n = int(s[i]) | int(s[i+1])<<8 | int(s[i+2])<<16 | int(s[i+3])<<24
			i += 4
		default:
			return nil, fmt.Errorf("%w: unexpected opcode 0x%02x at %d", ErrInvalidOPReturn, op, i-1)
		}
		if n < 0 || i+n > len(s) {
			return nil, fmt.Errorf("%w: push of %d bytes overruns script", ErrInvalidOPReturn, n)
		}
		pushes = append(pushes, s[i:i+n])
		i += n
	}
	return pushes, nil
}

// EstimateFee returns the fee for a transaction of the given size at
// feePerByte sat/byte.
func EstimateFee(txSizeBytes int, feePerByte uint64) uint64 {
	if feePerByte == 0 {
		feePerByte = DefaultFeePerByte
	}
	if txSizeBytes < 0 {
		txSizeBytes = 0
	}
	return uint64(txSizeBytes) * feePerByte
}

// EstimateTxSize returns an upper bound on the serialized size of a
// transaction spending inputs into outputs plus one change output.
func EstimateTxSize(inputs []*UTXO, outputs []*OutputSpec) int {
	size := txOverhead
	for _, in := range inputs {
		if in == nil {
			continue
		}
		size += estimateInputSize(in)
	}
	for _, out := range outputs {
		if out == nil {
			continue
		}
		size += estimateOutputSize(out)
	}
	return size + p2pkhOutputSize
}

func estimateInputSize(in *UTXO) int {
	if in.Contract == nil {
		return p2pkhInputSize
	}
	redeem := len(in.Contract.RedeemScript)
	if redeem == 0 {
		redeem = 200
	}
	// Arguments are unknown until resolution; allow two signatures and a
	// selector on top of the redeem script push.
	unlock := len(contract.EncodeDataPush(make([]byte, redeem))) + 2*sigPushSize + 2
	return 36 + wire.VarIntSerializeSize(uint64(unlock)) + unlock + 4
}

func estimateOutputSize(out *OutputSpec) int {
	if out.IsOpReturn() {
		n := 1
		for _, p := range out.OpReturn {
			n += len(contract.EncodeDataPush(p))
		}
		return 8 + wire.VarIntSerializeSize(uint64(n)) + n
	}
	size := p2pkhOutputSize
	if out.Token != nil {
		if prefix, err := EncodeTokenPrefix(out.Token); err == nil {
			size += len(prefix)
		}
	}
	return size
}
