package tx

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	sighash "github.com/bsv-blockchain/go-sdk/transaction/sighash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestUnsignedTx(t *testing.T, lock []byte, outputs ...[]byte) *transaction.Transaction {
	t.Helper()
	sdkTx := transaction.NewTransaction()
	sdkTx.Version = 2
	for i, b := range []string{"11", "22"} {
		hash, err := chainhash.NewHashFromHex(testTxID(b))
		require.NoError(t, err)
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       hash,
			SourceTxOutIndex: uint32(i),
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
		sdkTx.Inputs[i].SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      50000,
			LockingScript: script.NewFromBytes(lock),
		})
	}
	for _, out := range outputs {
		sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
			Satoshis:      20000,
			LockingScript: script.NewFromBytes(out),
		})
	}
	return sdkTx
}

func TestSignaturePreimage_MatchesForkIDWithoutTokens(t *testing.T) {
	_, pub := generateTestKeyPair(t)
	lock, err := BuildP2PKHScript(pub)
	require.NoError(t, err)

	sdkTx := buildTestUnsignedTx(t, lock, lock, lock)
	for idx := range sdkTx.Inputs {
		got, err := SignaturePreimage(sdkTx, idx, lock, SpentOutput{Satoshis: 50000}, SigHashAllForkID)
		require.NoError(t, err)

		want, err := sdkTx.CalcInputPreimage(uint32(idx), sighash.AllForkID)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %d", idx)
	}
}

func TestSignaturePreimage_TokenPrefixCovered(t *testing.T) {
	_, pub := generateTestKeyPair(t)
	lock, err := BuildP2PKHScript(pub)
	require.NoError(t, err)
	sdkTx := buildTestUnsignedTx(t, lock, lock)

	token := &Token{Category: testTxID("ab"), Amount: 10}
	prefix, err := EncodeTokenPrefix(token)
	require.NoError(t, err)

	plain, err := SignaturePreimage(sdkTx, 0, lock, SpentOutput{Satoshis: 50000}, SigHashAllForkID)
	require.NoError(t, err)
	withToken, err := SignaturePreimage(sdkTx, 0, lock, SpentOutput{Satoshis: 50000, Token: token}, SigHashAllForkID)
	require.NoError(t, err)

	// version(4) + hashPrevouts(32) + hashSequence(32) + outpoint(36)
	const headerLen = 104
	assert.Equal(t, len(plain)+len(prefix), len(withToken))
	assert.Equal(t, plain[:headerLen], withToken[:headerLen])
	assert.Equal(t, prefix, withToken[headerLen:headerLen+len(prefix)])
	assert.Equal(t, plain[headerLen:], withToken[headerLen+len(prefix):])
}

func TestSignatureHash_OutputTokenChangesDigest(t *testing.T) {
	_, pub := generateTestKeyPair(t)
	lock, err := BuildP2PKHScript(pub)
	require.NoError(t, err)

	prefix, err := EncodeTokenPrefix(&Token{Category: testTxID("ab"), Amount: 10})
	require.NoError(t, err)

	a, err := SignatureHash(buildTestUnsignedTx(t, lock, lock), 0, lock, SpentOutput{Satoshis: 50000}, SigHashAllForkID)
	require.NoError(t, err)
	b, err := SignatureHash(buildTestUnsignedTx(t, lock, append(prefix, lock...)), 0, lock, SpentOutput{Satoshis: 50000}, SigHashAllForkID)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.False(t, bytes.Equal(a, b))
}

func TestSignaturePreimage_Errors(t *testing.T) {
	_, err := SignaturePreimage(nil, 0, nil, SpentOutput{}, SigHashAllForkID)
	assert.ErrorIs(t, err, ErrNilParam)

	sdkTx := buildTestUnsignedTx(t, []byte{0x51})
	_, err = SignaturePreimage(sdkTx, 5, nil, SpentOutput{}, SigHashAllForkID)
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestBuildP2PKHScript(t *testing.T) {
	_, pub := generateTestKeyPair(t)
	s, err := BuildP2PKHScript(pub)
	require.NoError(t, err)
	require.Len(t, s, 25)
	assert.Equal(t, []byte{0x76, 0xa9, 0x14}, s[:3])

	_, err = BuildP2PKHScript(nil)
	assert.ErrorIs(t, err, ErrNilParam)
}
