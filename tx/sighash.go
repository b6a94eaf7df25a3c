package tx

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/gcash/bchd/wire"
)

// SigHashAllForkID is SIGHASH_ALL with the fork id bit, the only type the
// builder signs with.
const SigHashAllForkID = uint32(0x41)

// SpentOutput is the previous output an input spends, as covered by its
// signature.
type SpentOutput struct {
	Satoshis uint64
	Token    *Token
}

// SignaturePreimage returns the fork-id signature preimage of input idx.
// The spent output's token prefix precedes the covered script code, and
// output token prefixes are committed through hashOutputs as part of each
// output's bytecode.
func SignaturePreimage(t *transaction.Transaction, idx int, scriptCode []byte, spent SpentOutput, sigHashType uint32) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transaction", ErrNilParam)
	}
	if idx < 0 || idx >= len(t.Inputs) {
		return nil, fmt.Errorf("%w: input index %d out of range", ErrSigningFailed, idx)
	}

	var prevouts, sequences, outputs bytes.Buffer
	for _, in := range t.Inputs {
		if in.SourceTXID == nil {
			return nil, fmt.Errorf("%w: input without source txid", ErrSigningFailed)
		}
		prevouts.Write(in.SourceTXID[:])
		_ = binary.Write(&prevouts, binary.LittleEndian, in.SourceTxOutIndex)
		_ = binary.Write(&sequences, binary.LittleEndian, in.SequenceNumber)
	}
	for _, out := range t.Outputs {
		_ = binary.Write(&outputs, binary.LittleEndian, out.Satoshis)
		var lock []byte
		if out.LockingScript != nil {
			lock = *out.LockingScript
		}
		if err := wire.WriteVarBytes(&outputs, 0, lock); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
		}
	}

	in := t.Inputs[idx]
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, t.Version)
	buf.Write(chainhash.DoubleHashB(prevouts.Bytes()))
	buf.Write(chainhash.DoubleHashB(sequences.Bytes()))
	buf.Write(in.SourceTXID[:])
	_ = binary.Write(&buf, binary.LittleEndian, in.SourceTxOutIndex)
	if spent.Token != nil {
		prefix, err := EncodeTokenPrefix(spent.Token)
		if err != nil {
			return nil, err
		}
		buf.Write(prefix)
	}
	if err := wire.WriteVarBytes(&buf, 0, scriptCode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	_ = binary.Write(&buf, binary.LittleEndian, spent.Satoshis)
	_ = binary.Write(&buf, binary.LittleEndian, in.SequenceNumber)
	buf.Write(chainhash.DoubleHashB(outputs.Bytes()))
	_ = binary.Write(&buf, binary.LittleEndian, t.LockTime)
	_ = binary.Write(&buf, binary.LittleEndian, sigHashType)
	return buf.Bytes(), nil
}

// SignatureHash returns the double-SHA256 digest of the signature preimage.
func SignatureHash(t *transaction.Transaction, idx int, scriptCode []byte, spent SpentOutput, sigHashType uint32) ([]byte, error) {
	preimage, err := SignaturePreimage(t, idx, scriptCode, spent, sigHashType)
	if err != nil {
		return nil, err
	}
	return chainhash.DoubleHashB(preimage), nil
}
