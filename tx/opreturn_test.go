package tx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOPReturnScript(t *testing.T) {
	s, err := BuildOPReturnScript([][]byte{[]byte("memo"), {0x05}, {}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6a, 0x04, 'm', 'e', 'm', 'o', 0x55, 0x00}, s)
}

func TestBuildOPReturnScript_TooLarge(t *testing.T) {
	_, err := BuildOPReturnScript([][]byte{bytes.Repeat([]byte{1}, MaxOPReturnSize)})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestOPReturn_RoundTrip(t *testing.T) {
	pushes := [][]byte{
		[]byte("SLP"),
		bytes.Repeat([]byte{0xaa}, 80),
		{0x81},
		{0x10},
		{},
	}
	s, err := BuildOPReturnScript(pushes)
	require.NoError(t, err)

	got, err := ParseOPReturnScript(s)
	require.NoError(t, err)
	assert.Equal(t, pushes, got)
}

func TestParseOPReturnScript_Errors(t *testing.T) {
	_, err := ParseOPReturnScript(nil)
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, err = ParseOPReturnScript([]byte{0x76})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, err = ParseOPReturnScript([]byte{0x6a, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, err = ParseOPReturnScript([]byte{0x6a, 0xac})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)
}

func TestEstimateFee(t *testing.T) {
	assert.Equal(t, uint64(226), EstimateFee(226, 1))
	assert.Equal(t, uint64(452), EstimateFee(226, 2))
	assert.Equal(t, uint64(226), EstimateFee(226, 0), "zero rate falls back to default")
	assert.Equal(t, uint64(0), EstimateFee(0, 1))
	assert.Equal(t, uint64(0), EstimateFee(-5, 1))
}

func TestEstimateTxSize(t *testing.T) {
	in := &UTXO{TxID: testTxID("aa"), Satoshis: 100000}
	out := &OutputSpec{To: "x", Satoshis: 20000}

	// One P2PKH input, one output and change.
	assert.Equal(t, 10+149+34+34, EstimateTxSize([]*UTXO{in}, []*OutputSpec{out}))

	tokenOut := &OutputSpec{To: "x", Token: &Token{Category: testTxID("bb"), Amount: 1}}
	assert.Equal(t, 10+149+34+(34+35)+34, EstimateTxSize([]*UTXO{in}, []*OutputSpec{out, tokenOut}))

	contractIn := &UTXO{TxID: testTxID("cc"), Contract: &ContractMeta{RedeemScript: make([]byte, 100)}}
	assert.Greater(t, EstimateTxSize([]*UTXO{contractIn}, nil), 10+100+2*sigPushSize)

	assert.Equal(t, 10+34, EstimateTxSize(nil, nil))
}
