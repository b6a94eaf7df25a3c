package tx

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/gcash/bchd/chaincfg"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/log"
)

// Builder assembles, signs and fee-balances transactions.
type Builder struct {
	Resolver   Resolver
	Params     *chaincfg.Params
	FeePerByte uint64
	Logger     zerolog.Logger
}

// NewBuilder creates a Builder for the given network with the default fee rate.
func NewBuilder(resolver Resolver, params *chaincfg.Params) *Builder {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &Builder{
		Resolver:   resolver,
		Params:     params,
		FeePerByte: DefaultFeePerByte,
		Logger:     log.Builder,
	}
}

// BuildRequest is the input to Build.
type BuildRequest struct {
	Inputs  []*UTXO
	Outputs []*OutputSpec

	// ChangeAddress receives satoshi change and token change. Defaults to
	// the first input's address.
	ChangeAddress string

	// InitialFee is the first fee estimate. Zero selects EstimateTxSize.
	InitialFee uint64

	// MaxIterations bounds fee convergence. Zero selects DefaultMaxIterations.
	MaxIterations int

	// Call applies to every contract input without an entry in Calls.
	Call  *CallContext
	Calls map[Outpoint]*CallContext

	// AllowTokenBurn permits input NFTs that no output carries forward.
	AllowTokenBurn bool

	LockTime uint32
}

// BuildResult is a fully signed transaction and its fee accounting.
type BuildResult struct {
	RawTx      []byte
	Hex        string
	TxID       string
	ByteSize   int
	Fee        uint64
	Change     uint64
	ChangeVout int // -1 when change was folded into the fee
	Iterations int
}

// Build runs the fee convergence loop:
//
//  1. change = inputs − outputs − fee; negative change fails.
//  2. change ≥ DustLimit adds a change output, otherwise it joins the fee.
//  3. The transaction is assembled and every input signed.
//  4. newFee = max(size × FeePerByte, fee). If newFee exceeds fee the loop
//     repeats with fee = newFee, up to MaxIterations times.
//
// Unlocking strategies are resolved once; signatures are regenerated on
// every iteration. Resolver errors are returned unchanged.
func (b *Builder) Build(ctx context.Context, req *BuildRequest) (*BuildResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: build request", ErrNilParam)
	}
	if err := b.validate(req); err != nil {
		return nil, err
	}

	changeAddr := req.ChangeAddress
	if changeAddr == "" {
		changeAddr = defaultChangeAddress(req.Inputs)
		if changeAddr == "" {
			return nil, fmt.Errorf("%w: change address required when every input is a contract", ErrInvalidOutput)
		}
	}
	changeLock, err := AddressLockingBytecode(changeAddr, b.Params)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}

	plan, err := planTokens(req.Inputs, req.Outputs, changeAddr, req.AllowTokenBurn)
	if err != nil {
		return nil, err
	}
	outputs := append(append([]*OutputSpec{}, req.Outputs...), plan.change...)

	// Locking bytecode is fixed across iterations; only values change.
	locks := make([][]byte, len(outputs))
	var sendTotal, inputTotal, carry uint64
	for i, out := range outputs {
		lock, err := b.outputBytecode(out)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		locks[i] = lock
		if sendTotal, carry = bits.Add64(sendTotal, out.Value(), 0); carry != 0 {
			return nil, fmt.Errorf("%w: output total overflows", ErrInsufficientFunds)
		}
	}
	for _, in := range req.Inputs {
		if inputTotal, carry = bits.Add64(inputTotal, in.Satoshis, 0); carry != 0 {
			return nil, fmt.Errorf("%w: input total overflows", ErrInput)
		}
	}

	fee := req.InitialFee
	if fee == 0 {
		fee = EstimateFee(EstimateTxSize(req.Inputs, outputs), b.feePerByte())
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var strategies []UnlockingStrategy
	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		need, carry := bits.Add64(sendTotal, fee, 0)
		if carry != 0 || inputTotal < need {
			return nil, fmt.Errorf("%w: need outputs %d + fee %d sat, have %d sat",
				ErrInsufficientFunds, sendTotal, fee, inputTotal)
		}
		change := inputTotal - sendTotal - fee

		sdkTx, err := b.assemble(req, outputs, locks)
		if err != nil {
			return nil, err
		}
		changeVout := -1
		if change >= DustLimit {
			changeVout = len(sdkTx.Outputs)
			sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
				Satoshis:      change,
				LockingScript: script.NewFromBytes(changeLock),
			})
		}

		if strategies == nil {
			strategies, err = b.resolve(ctx, req)
			if err != nil {
				return nil, err
			}
		}
		if err := signAll(sdkTx, req.Inputs, strategies); err != nil {
			return nil, err
		}

		raw := sdkTx.Bytes()
		size := len(raw)
		newFee := EstimateFee(size, b.feePerByte())
		if newFee < fee {
			newFee = fee
		}

		b.Logger.Debug().
			Int("iteration", iter).
			Int("size", size).
			Uint64("fee", fee).
			Uint64("new_fee", newFee).
			Uint64("change", change).
			Msg("fee iteration")

		if newFee == fee {
			res := &BuildResult{
				RawTx:      raw,
				Hex:        hex.EncodeToString(raw),
				TxID:       sdkTx.TxID().String(),
				ByteSize:   size,
				Fee:        inputTotal - sendTotal,
				ChangeVout: changeVout,
				Iterations: iter,
			}
			if changeVout >= 0 {
				res.Change = change
				res.Fee -= change
			}
			b.Logger.Info().
				Str("txid", res.TxID).
				Int("size", size).
				Uint64("fee", res.Fee).
				Int("iterations", iter).
				Msg("transaction built")
			return res, nil
		}
		if iter >= maxIter {
			return nil, fmt.Errorf("%w: fee %d still below %d after %d iterations",
				ErrFeeConvergence, fee, newFee, iter)
		}
		fee = newFee
	}
}

func (b *Builder) feePerByte() uint64 {
	if b.FeePerByte == 0 {
		return DefaultFeePerByte
	}
	return b.FeePerByte
}

func (b *Builder) validate(req *BuildRequest) error {
	if len(req.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrInput)
	}
	if len(req.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs", ErrInput)
	}
	for i, in := range req.Inputs {
		if in == nil {
			return fmt.Errorf("%w: input %d", ErrNilParam, i)
		}
		if _, err := chainhash.NewHashFromHex(in.TxID); err != nil || len(in.TxID) != TxIDLen*2 {
			return fmt.Errorf("%w: input %d has invalid txid %q", ErrInput, i, in.TxID)
		}
		if in.Satoshis > MaxSatoshis {
			return fmt.Errorf("%w: input %d value %d sat exceeds the money supply", ErrInput, i, in.Satoshis)
		}
	}
	for i, out := range req.Outputs {
		if err := out.Validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	if b.Resolver == nil {
		return ErrNoResolver
	}
	return nil
}

// defaultChangeAddress returns the address of the first input that is not a
// contract, or "" if there is none.
func defaultChangeAddress(inputs []*UTXO) string {
	for _, in := range inputs {
		if in.Contract == nil && in.Address != "" {
			return in.Address
		}
	}
	return ""
}

// outputBytecode returns the full output bytecode including any token prefix.
func (b *Builder) outputBytecode(out *OutputSpec) ([]byte, error) {
	if out.IsOpReturn() {
		return BuildOPReturnScript(out.OpReturn)
	}
	lock, err := AddressLockingBytecode(out.To, b.Params)
	if err != nil {
		return nil, err
	}
	if out.Token == nil {
		return lock, nil
	}
	prefix, err := EncodeTokenPrefix(out.Token)
	if err != nil {
		return nil, err
	}
	return append(prefix, lock...), nil
}

// assemble creates the unsigned transaction with every requested output.
func (b *Builder) assemble(req *BuildRequest, outputs []*OutputSpec, locks [][]byte) (*transaction.Transaction, error) {
	sdkTx := transaction.NewTransaction()
	sdkTx.Version = 2
	sdkTx.LockTime = req.LockTime

	for i, in := range req.Inputs {
		hash, err := chainhash.NewHashFromHex(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d txid: %w", ErrInput, i, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       hash,
			SourceTxOutIndex: in.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
	}
	for i, out := range outputs {
		sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
			Satoshis:      out.Value(),
			LockingScript: script.NewFromBytes(locks[i]),
		})
	}
	return sdkTx, nil
}

// resolve asks the resolver for every input's unlocking strategy.
func (b *Builder) resolve(ctx context.Context, req *BuildRequest) ([]UnlockingStrategy, error) {
	strategies := make([]UnlockingStrategy, len(req.Inputs))
	for i, in := range req.Inputs {
		call := req.Call
		if c, ok := req.Calls[in.Outpoint()]; ok {
			call = c
		}
		s, err := b.Resolver.Resolve(ctx, in, call)
		if err != nil {
			return nil, err
		}
		strategies[i] = s
	}
	return strategies, nil
}
