package tx

import (
	"context"
	"strings"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.MainNetParams

func generateTestKeyPair(t *testing.T) (*ec.PrivateKey, *ec.PublicKey) {
	t.Helper()
	privKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return privKey, privKey.PubKey()
}

func testAddress(t *testing.T, pub *ec.PublicKey) string {
	t.Helper()
	addr, err := P2PKHAddress(pub.Compressed(), testParams)
	require.NoError(t, err)
	return addr
}

// testTxID returns a display-hex txid filled with one byte.
func testTxID(b string) string {
	return strings.Repeat(b, 32)
}

func testUTXO(t *testing.T, key *ec.PrivateKey, txidByte string, vout uint32, sats uint64) *UTXO {
	t.Helper()
	return &UTXO{
		Address:  testAddress(t, key.PubKey()),
		TxID:     testTxID(txidByte),
		Vout:     vout,
		Satoshis: sats,
	}
}

// keyResolver signs every input with one key.
func keyResolver(key *ec.PrivateKey) Resolver {
	return ResolverFunc(func(_ context.Context, _ *UTXO, _ *CallContext) (UnlockingStrategy, error) {
		return &PlainSignature{Key: key}, nil
	})
}
