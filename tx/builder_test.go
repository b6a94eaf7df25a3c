package tx

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libcashtx-go/contract"
)

func newTestBuilder(t *testing.T) (*Builder, string, func(txid string, vout uint32, sats uint64) *UTXO) {
	t.Helper()
	priv, pub := generateTestKeyPair(t)
	addr := testAddress(t, pub)
	b := NewBuilder(keyResolver(priv), testParams)
	mk := func(txid string, vout uint32, sats uint64) *UTXO {
		return &UTXO{Address: addr, TxID: testTxID(txid), Vout: vout, Satoshis: sats}
	}
	return b, addr, mk
}

func parseResult(t *testing.T, res *BuildResult) *transaction.Transaction {
	t.Helper()
	parsed, err := transaction.NewTransactionFromBytes(res.RawTx)
	require.NoError(t, err)
	assert.Equal(t, res.TxID, parsed.TxID().String())
	assert.Equal(t, len(res.RawTx), res.ByteSize)
	return parsed
}

func outputTotal(tx *transaction.Transaction) uint64 {
	var total uint64
	for _, o := range tx.Outputs {
		total += o.Satoshis
	}
	return total
}

func TestBuild_SinglePaymentWithChange(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 1, 100000)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee: 182,
	})
	require.NoError(t, err)

	assert.InDelta(t, 226, float64(res.Fee), 2)
	assert.Equal(t, uint64(100000-20000)-res.Fee, res.Change)
	assert.Equal(t, 1, res.ChangeVout)
	assert.GreaterOrEqual(t, res.Iterations, 2)
	assert.LessOrEqual(t, res.Iterations, DefaultMaxIterations)
	assert.GreaterOrEqual(t, res.Fee, uint64(res.ByteSize))

	parsed := parseResult(t, res)
	require.Len(t, parsed.Outputs, 2)
	assert.Equal(t, uint64(20000), parsed.Outputs[0].Satoshis)
	assert.Equal(t, res.Change, parsed.Outputs[1].Satoshis)
	assert.Equal(t, uint64(100000)-res.Fee, outputTotal(parsed))
	assert.Equal(t, uint32(2), parsed.Version)
}

func TestBuild_InsufficientFunds(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	resolved := false
	b.Resolver = ResolverFunc(func(context.Context, *UTXO, *CallContext) (UnlockingStrategy, error) {
		resolved = true
		return nil, errors.New("unreachable")
	})

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 0, 1000)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 900}},
		InitialFee: 182,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, ErrInput)
	assert.False(t, resolved, "no unlocking work before the funds check")
}

func TestBuild_FeeCoversSize(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)
	to := testAddress(t, recipientPub)

	for _, amount := range []uint64{546, 1000, 5000, 49000, 98000} {
		res, err := b.Build(context.Background(), &BuildRequest{
			Inputs:     []*UTXO{mk("aa", 0, 60000), mk("bb", 3, 40000)},
			Outputs:    []*OutputSpec{{To: to, Satoshis: amount}},
			InitialFee: 600,
		})
		require.NoError(t, err, "amount %d", amount)
		assert.GreaterOrEqual(t, res.Fee, uint64(res.ByteSize), "amount %d", amount)
		parsed := parseResult(t, res)
		for _, o := range parsed.Outputs {
			assert.GreaterOrEqual(t, o.Satoshis, DustLimit)
		}
	}
}

func TestBuild_DustChangeFoldedIntoFee(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 0, 20700)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, -1, res.ChangeVout)
	assert.Equal(t, uint64(0), res.Change)
	assert.Equal(t, uint64(700), res.Fee)
	assert.Equal(t, 1, res.Iterations)

	parsed := parseResult(t, res)
	assert.Len(t, parsed.Outputs, 1)
}

func TestBuild_DefaultInitialFeeConvergesImmediately(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:  []*UTXO{mk("aa", 0, 50000), mk("bb", 1, 50000), mk("cc", 2, 50000)},
		Outputs: []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 120000}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.GreaterOrEqual(t, res.Fee, uint64(res.ByteSize))
}

func TestBuild_FeeConvergenceBudget(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:        []*UTXO{mk("aa", 0, 100000)},
		Outputs:       []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee:    100,
		MaxIterations: 1,
	})
	assert.ErrorIs(t, err, ErrFeeConvergence)
	assert.NotErrorIs(t, err, ErrInput)
}

func TestBuild_FeeRate(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	b.FeePerByte = 2
	_, recipientPub := generateTestKeyPair(t)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 0, 100000)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee: 500,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Fee, 2*uint64(res.ByteSize))
}

func TestBuild_ResolverErrorReturnedVerbatim(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)
	sentinel := errors.New("key service offline")
	b.Resolver = ResolverFunc(func(context.Context, *UTXO, *CallContext) (UnlockingStrategy, error) {
		return nil, sentinel
	})

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 0, 100000)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee: 300,
	})
	assert.Same(t, sentinel, err)
}

func TestBuild_ResolvesOncePerInput(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	priv, recipientPub := generateTestKeyPair(t)
	calls := 0
	b.Resolver = ResolverFunc(func(context.Context, *UTXO, *CallContext) (UnlockingStrategy, error) {
		calls++
		return &PlainSignature{Key: priv}, nil
	})

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:        []*UTXO{mk("aa", 0, 100000), mk("bb", 0, 1000)},
		Outputs:       []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		InitialFee:    182,
		MaxIterations: 5,
	})
	require.NoError(t, err)
	assert.Greater(t, res.Iterations, 1)
	assert.Equal(t, 2, calls)
}

func TestBuild_InvalidRequests(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *BuildRequest
	}{
		{"nil request", nil},
		{"no inputs", &BuildRequest{Outputs: []*OutputSpec{{To: addr, Satoshis: 1000}}}},
		{"no outputs", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 1000)}}},
		{"nil input", &BuildRequest{Inputs: []*UTXO{nil}, Outputs: []*OutputSpec{{To: addr, Satoshis: 1000}}}},
		{"bad txid", &BuildRequest{Inputs: []*UTXO{{TxID: "xyz", Satoshis: 5000}}, Outputs: []*OutputSpec{{To: addr, Satoshis: 1000}}}},
		{"nil output", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 5000)}, Outputs: []*OutputSpec{nil}}},
		{"dust output", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 5000)}, Outputs: []*OutputSpec{{To: addr, Satoshis: 545}}}},
		{"value and data", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 5000)}, Outputs: []*OutputSpec{{To: addr, Satoshis: 1000, OpReturn: [][]byte{[]byte("x")}}}}},
		{"bad address", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 5000)}, Outputs: []*OutputSpec{{To: "bitcoincash:qnotanaddress", Satoshis: 1000}}}},
		{"bad change address", &BuildRequest{Inputs: []*UTXO{mk("aa", 0, 5000)}, Outputs: []*OutputSpec{{To: addr, Satoshis: 1000}}, ChangeAddress: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInput)
		})
	}
}

func TestBuild_OpReturnOutput(t *testing.T) {
	b, _, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs: []*UTXO{mk("aa", 0, 100000)},
		Outputs: []*OutputSpec{
			{To: testAddress(t, recipientPub), Satoshis: 20000},
			{OpReturn: [][]byte{[]byte("hello")}},
		},
		InitialFee: 300,
	})
	require.NoError(t, err)

	parsed := parseResult(t, res)
	require.Len(t, parsed.Outputs, 3)
	assert.Equal(t, uint64(0), parsed.Outputs[1].Satoshis)
	pushes, err := ParseOPReturnScript(*parsed.Outputs[1].LockingScript)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello")}, pushes)
}

func TestBuild_ContextCancelled(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, &BuildRequest{
		Inputs:  []*UTXO{mk("aa", 0, 100000)},
		Outputs: []*OutputSpec{{To: addr, Satoshis: 20000}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Tokens ---

func TestBuild_TokenFieldsPreservedAcrossIterations(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	_, recipientPub := generateTestKeyPair(t)
	category := testTxID("c1")

	tokenIn := mk("aa", 1, 1000)
	tokenIn.Token = &Token{Category: category, Amount: 500, NFT: &NFT{Capability: CapabilityMutable, Commitment: []byte{0x01, 0x02}}}
	want := &Token{Category: category, Amount: 300, NFT: &NFT{Capability: CapabilityMutable, Commitment: []byte{0x01, 0x02}}}
	wantCopy := want.Clone()

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:        []*UTXO{tokenIn, mk("bb", 2, 50000)},
		Outputs:       []*OutputSpec{{To: testAddress(t, recipientPub), Token: want}},
		ChangeAddress: addr,
		InitialFee:    182,
		MaxIterations: 5,
	})
	require.NoError(t, err)
	assert.Greater(t, res.Iterations, 1)
	assert.Equal(t, wantCopy, want, "request token must not be mutated")

	parsed := parseResult(t, res)
	require.Len(t, parsed.Outputs, 3, "payment, token change, change")

	got, _, err := DecodeTokenPrefix(*parsed.Outputs[0].LockingScript)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, TokenOutputSatoshis, parsed.Outputs[0].Satoshis)

	change, _, err := DecodeTokenPrefix(*parsed.Outputs[1].LockingScript)
	require.NoError(t, err)
	assert.Equal(t, &Token{Category: category, Amount: 200}, change)
	assert.Equal(t, TokenOutputSatoshis, parsed.Outputs[1].Satoshis)

	noToken, _, err := DecodeTokenPrefix(*parsed.Outputs[2].LockingScript)
	require.NoError(t, err)
	assert.Nil(t, noToken)
}

func TestBuild_TokenOverspend(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	category := testTxID("c1")
	tokenIn := mk("aa", 1, 1000)
	tokenIn.Token = &Token{Category: category, Amount: 10}

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{tokenIn, mk("bb", 2, 50000)},
		Outputs:    []*OutputSpec{{To: addr, Token: &Token{Category: category, Amount: 11}}},
		InitialFee: 500,
	})
	assert.ErrorIs(t, err, ErrTokenBalance)
	assert.ErrorIs(t, err, ErrInput)
}

func TestBuild_UnknownCategoryOutput(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("bb", 2, 50000)},
		Outputs:    []*OutputSpec{{To: addr, Token: &Token{Category: testTxID("c1"), Amount: 1}}},
		InitialFee: 500,
	})
	assert.ErrorIs(t, err, ErrTokenBalance)
}

func TestBuild_GenesisCreatesCategory(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	genesis := mk("c1", 0, 50000)

	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs: []*UTXO{genesis},
		Outputs: []*OutputSpec{{To: addr, Token: &Token{
			Category: genesis.TxID,
			Amount:   1000000,
			NFT:      &NFT{Capability: CapabilityMinting},
		}}},
		InitialFee: 500,
	})
	require.NoError(t, err)
	parsed := parseResult(t, res)
	tok, _, err := DecodeTokenPrefix(*parsed.Outputs[0].LockingScript)
	require.NoError(t, err)
	assert.Equal(t, genesis.TxID, tok.Category)
}

func TestBuild_NFTBurnRequiresConsent(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	nftIn := mk("aa", 1, 1000)
	nftIn.Token = &Token{Category: testTxID("c1"), NFT: &NFT{Commitment: []byte("ticket")}}

	req := &BuildRequest{
		Inputs:     []*UTXO{nftIn, mk("bb", 2, 50000)},
		Outputs:    []*OutputSpec{{To: addr, Satoshis: 10000}},
		InitialFee: 500,
	}
	_, err := b.Build(context.Background(), req)
	assert.ErrorIs(t, err, ErrTokenBalance)

	req.AllowTokenBurn = true
	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	parsed := parseResult(t, res)
	for _, o := range parsed.Outputs {
		tok, _, err := DecodeTokenPrefix(*o.LockingScript)
		require.NoError(t, err)
		assert.Nil(t, tok)
	}
}

func TestBuild_ImmutableNFTCannotChange(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	category := testTxID("c1")
	nftIn := mk("aa", 1, 1000)
	nftIn.Token = &Token{Category: category, NFT: &NFT{Commitment: []byte("a")}}

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{nftIn, mk("bb", 2, 50000)},
		Outputs:    []*OutputSpec{{To: addr, Token: &Token{Category: category, NFT: &NFT{Commitment: []byte("b")}}}},
		InitialFee: 500,
	})
	assert.ErrorIs(t, err, ErrTokenBalance)
}

func TestBuild_MintingNFTCreatesChildren(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	category := testTxID("c1")
	minter := mk("aa", 1, 1000)
	minter.Token = &Token{Category: category, NFT: &NFT{Capability: CapabilityMinting}}

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs: []*UTXO{minter, mk("bb", 2, 50000)},
		Outputs: []*OutputSpec{
			{To: addr, Token: &Token{Category: category, NFT: &NFT{Capability: CapabilityMinting}}},
			{To: addr, Token: &Token{Category: category, NFT: &NFT{Commitment: []byte{1}}}},
			{To: addr, Token: &Token{Category: category, NFT: &NFT{Commitment: []byte{2}}}},
		},
		InitialFee: 800,
	})
	require.NoError(t, err)
}

// --- Contract inputs ---

func TestBuild_ContractCallUnlocking(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	signer, _ := generateTestKeyPair(t)
	redeem, err := contract.AssembleASM("OP_DROP OP_CHECKSIG")
	require.NoError(t, err)

	contractIn := mk("aa", 0, 30000)
	contractIn.Contract = &ContractMeta{Address: "p2sh", RedeemScript: redeem}
	plainKey, _ := generateTestKeyPair(t)

	var gotCall *CallContext
	b.Resolver = ResolverFunc(func(_ context.Context, u *UTXO, call *CallContext) (UnlockingStrategy, error) {
		if u.Contract == nil {
			return &PlainSignature{Key: plainKey}, nil
		}
		gotCall = call
		return &ContractCall{
			Contract: "Demo",
			Function: "spend",
			Args: []ContractArg{
				{Name: "s", Signer: signer},
				{Name: "flag", Data: []byte{0x01}},
			},
			Selector:     contract.Selector(1),
			RedeemScript: redeem,
		}, nil
	})

	call := &CallContext{Function: "spend"}
	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{contractIn, mk("bb", 1, 5000)},
		Outputs:    []*OutputSpec{{To: addr, Satoshis: 20000}},
		Calls:      map[Outpoint]*CallContext{contractIn.Outpoint(): call},
		InitialFee: 1000,
	})
	require.NoError(t, err)
	assert.Same(t, call, gotCall)

	parsed := parseResult(t, res)
	unlock := []byte(*parsed.Inputs[0].UnlockingScript)

	// Arguments are pushed last-to-first: flag, signature, then the selector
	// and the redeem script.
	assert.Equal(t, byte(0x51), unlock[0], "flag pushed as OP_1")
	sigLen := int(unlock[1])
	assert.True(t, sigLen >= 70 && sigLen <= 73, "signature push length %d", sigLen)
	assert.Equal(t, byte(SigHashAllForkID), unlock[1+sigLen])
	tail := unlock[2+sigLen:]
	assert.Equal(t, byte(0x51), tail[0], "selector")
	assert.True(t, bytes.Equal(contract.EncodeDataPush(redeem), tail[1:]))
}

func TestBuild_ChangeSkipsContractInputs(t *testing.T) {
	b, addr, mk := newTestBuilder(t)
	redeem, err := contract.AssembleASM("OP_DROP OP_CHECKSIG")
	require.NoError(t, err)
	contractAddr, err := P2SH32Address(redeem, testParams)
	require.NoError(t, err)

	contractIn := mk("aa", 0, 30000)
	contractIn.Address = contractAddr
	contractIn.Contract = &ContractMeta{Address: contractAddr, RedeemScript: redeem}
	plainKey, _ := generateTestKeyPair(t)
	signer, _ := generateTestKeyPair(t)
	b.Resolver = ResolverFunc(func(_ context.Context, u *UTXO, _ *CallContext) (UnlockingStrategy, error) {
		if u.Contract == nil {
			return &PlainSignature{Key: plainKey}, nil
		}
		return &ContractCall{
			Contract:     "Demo",
			Function:     "spend",
			Args:         []ContractArg{{Name: "s", Signer: signer}},
			RedeemScript: redeem,
		}, nil
	})

	_, recipientPub := generateTestKeyPair(t)
	res, err := b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{contractIn, mk("bb", 1, 5000)},
		Outputs:    []*OutputSpec{{To: testAddress(t, recipientPub), Satoshis: 20000}},
		Calls:      map[Outpoint]*CallContext{contractIn.Outpoint(): {Function: "spend"}},
		InitialFee: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ChangeVout)

	parsed := parseResult(t, res)
	want, err := AddressLockingBytecode(addr, testParams)
	require.NoError(t, err)
	assert.Equal(t, want, []byte(*parsed.Outputs[1].LockingScript))

	// Only contract inputs and no explicit change address.
	_, err = b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{contractIn},
		Outputs:    []*OutputSpec{{To: addr, Satoshis: 20000}},
		Calls:      map[Outpoint]*CallContext{contractIn.Outpoint(): {Function: "spend"}},
		InitialFee: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestBuild_AmountsBeyondMoneySupply(t *testing.T) {
	b, addr, mk := newTestBuilder(t)

	_, err := b.Build(context.Background(), &BuildRequest{
		Inputs: []*UTXO{mk("aa", 0, 100000)},
		Outputs: []*OutputSpec{
			{To: addr, Satoshis: 1 << 63},
			{To: addr, Satoshis: 1 << 63},
		},
		InitialFee: 182,
	})
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = b.Build(context.Background(), &BuildRequest{
		Inputs:     []*UTXO{mk("aa", 0, MaxSatoshis+1)},
		Outputs:    []*OutputSpec{{To: addr, Satoshis: 1000}},
		InitialFee: 182,
	})
	assert.ErrorIs(t, err, ErrInput)

	// Each input is in range but the sum wraps around.
	inputs := make([]*UTXO, 8800)
	for i := range inputs {
		inputs[i] = mk("aa", uint32(i), MaxSatoshis)
	}
	_, err = b.Build(context.Background(), &BuildRequest{
		Inputs:     inputs,
		Outputs:    []*OutputSpec{{To: addr, Satoshis: 1000}},
		InitialFee: 182,
	})
	assert.ErrorIs(t, err, ErrInput)
}
