package contract

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadArtifact(t *testing.T) *Artifact {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "transfer_with_timeout.json"))
	require.NoError(t, err)
	a, err := ParseArtifact(data)
	require.NoError(t, err)
	return a
}

// --- Script numbers and pushes ---

func TestEncodeScriptNum(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, ""},
		{1, "01"},
		{-1, "81"},
		{127, "7f"},
		{128, "8000"},
		{-128, "8080"},
		{255, "ff00"},
		{256, "0001"},
		{-256, "0081"},
		{500000, "20a107"},
	}
	for _, tt := range tests {
		got := EncodeInt(tt.n)
		assert.Equal(t, tt.want, hex.EncodeToString(got), "n=%d", tt.n)
		assert.Equal(t, tt.n, DecodeScriptNum(got).Int64(), "round trip n=%d", tt.n)
	}
}

func TestEncodeScriptNum_Big(t *testing.T) {
	n, ok := new(big.Int).SetString("-123456789012345678901234567890", 10)
	require.True(t, ok)
	assert.Equal(t, 0, n.Cmp(DecodeScriptNum(EncodeScriptNum(n))))
}

func TestEncodeDataPush(t *testing.T) {
	assert.Equal(t, []byte{0x00}, EncodeDataPush(nil))
	assert.Equal(t, []byte{0x51}, EncodeDataPush([]byte{1}))
	assert.Equal(t, []byte{0x60}, EncodeDataPush([]byte{16}))
	assert.Equal(t, []byte{0x4f}, EncodeDataPush([]byte{0x81}))
	assert.Equal(t, []byte{0x01, 0x11}, EncodeDataPush([]byte{17}))
	assert.Equal(t, []byte{0x01, 0x00}, EncodeDataPush([]byte{0}))

	d75 := bytes.Repeat([]byte{0xaa}, 75)
	assert.Equal(t, append([]byte{75}, d75...), EncodeDataPush(d75))

	d76 := bytes.Repeat([]byte{0xaa}, 76)
	assert.Equal(t, append([]byte{0x4c, 76}, d76...), EncodeDataPush(d76))

	d256 := bytes.Repeat([]byte{0xaa}, 256)
	assert.Equal(t, append([]byte{0x4d, 0x00, 0x01}, d256...), EncodeDataPush(d256))

	d65536 := bytes.Repeat([]byte{0xaa}, 65536)
	assert.Equal(t, []byte{0x4e, 0x00, 0x00, 0x01, 0x00}, EncodeDataPush(d65536)[:5])
}

func TestEncodeBool(t *testing.T) {
	assert.Equal(t, []byte{0x01}, EncodeBool(true))
	assert.Empty(t, EncodeBool(false))
}

// --- ASM ---

func TestAssembleASM(t *testing.T) {
	got, err := AssembleASM("OP_DUP OP_HASH160 0011223344556677889900112233445566778899 OP_EQUALVERIFY OP_CHECKSIG")
	require.NoError(t, err)
	assert.Equal(t, "76a914001122334455667788990011223344556677889988ac", hex.EncodeToString(got))
}

func TestAssembleASM_Introspection(t *testing.T) {
	got, err := AssembleASM("OP_INPUTINDEX OP_UTXOTOKENCATEGORY OP_OUTPUTTOKENAMOUNT OP_CHECKDATASIG OP_REVERSEBYTES")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc0, 0xce, 0xd3, 0xba, 0xbc}, got)
}

func TestAssembleASM_MinimalHexPush(t *testing.T) {
	got, err := AssembleASM("05 OP_ADD")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x93}, got)
}

func TestAssembleASM_Errors(t *testing.T) {
	_, err := AssembleASM("OP_DUP OP_FROBNICATE")
	assert.ErrorIs(t, err, ErrUnknownOpcode)

	_, err = AssembleASM("OP_DUP zz")
	assert.ErrorIs(t, err, ErrInvalidASM)

	_, err = AssembleASM("   ")
	assert.ErrorIs(t, err, ErrInvalidASM)
}

func TestOpcodeAliases(t *testing.T) {
	for alias, canonical := range map[string]string{
		"OP_FALSE": "OP_0",
		"OP_TRUE":  "OP_1",
		"OP_NOP2":  "OP_CHECKLOCKTIMEVERIFY",
		"OP_NOP3":  "OP_CHECKSEQUENCEVERIFY",
	} {
		a, ok := Opcode(alias)
		require.True(t, ok, alias)
		c, ok := Opcode(canonical)
		require.True(t, ok, canonical)
		assert.Equal(t, c, a, alias)
	}
}

// --- Artifact ---

func TestParseArtifact(t *testing.T) {
	a := loadArtifact(t)
	assert.Equal(t, "TransferWithTimeout", a.ContractName)
	assert.Len(t, a.ConstructorInputs, 3)
	assert.True(t, a.NeedsSelector())

	fn, idx, err := a.Function("timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "senderSig", fn.Inputs[0].Name)

	_, _, err = a.Function("refund")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestParseArtifact_Invalid(t *testing.T) {
	_, err := ParseArtifact([]byte("{"))
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = ParseArtifact([]byte(`{"contractName":"X","bytecode":"OP_1","abi":[]}`))
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = ParseArtifact([]byte(`{"contractName":"X","bytecode":"OP_1","abi":[{"name":"a"},{"name":"a"}]}`))
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestArtifactJSONFieldNames(t *testing.T) {
	a := loadArtifact(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, k := range []string{"contractName", "constructorInputs", "abi", "bytecode", "compiler"} {
		assert.Contains(t, raw, k)
	}
}

// --- Coercion ---

func TestCoerce_Int(t *testing.T) {
	in := ABIInput{Name: "amount", Type: "int"}
	for _, v := range []interface{}{42, int64(42), uint64(42), big.NewInt(42), json.Number("42"), "42", float64(42)} {
		arg, err := Coerce(in, v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, KindInt, arg.Kind)
		assert.Equal(t, int64(42), arg.Int.Int64())
	}

	_, err := Coerce(in, 4.5)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = Coerce(in, "forty-two")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = Coerce(in, true)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce_Bool(t *testing.T) {
	in := ABIInput{Name: "flag", Type: "bool"}
	arg, err := Coerce(in, "true")
	require.NoError(t, err)
	assert.True(t, arg.Bool)

	data, err := arg.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)

	_, err = Coerce(in, 1)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce_Bytes(t *testing.T) {
	arg, err := Coerce(ABIInput{Name: "h", Type: "bytes20"}, "00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	assert.Len(t, arg.Bytes, 20)

	_, err = Coerce(ABIInput{Name: "h", Type: "bytes20"}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	arg, err = Coerce(ABIInput{Name: "d", Type: "bytes"}, []byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, arg.Bytes)

	_, err = Coerce(ABIInput{Name: "d", Type: "bytes"}, 12)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce_StringAndPubkey(t *testing.T) {
	arg, err := Coerce(ABIInput{Name: "memo", Type: "string"}, "héllo")
	require.NoError(t, err)
	assert.Equal(t, []byte("héllo"), arg.Bytes)

	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey().Compressed()
	arg, err = Coerce(ABIInput{Name: "pk", Type: "pubkey"}, hex.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, arg.Bytes)

	_, err = Coerce(ABIInput{Name: "pk", Type: "pubkey"}, []byte{2, 3})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce_Sig(t *testing.T) {
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)

	arg, err := Coerce(ABIInput{Name: "s", Type: "sig"}, priv)
	require.NoError(t, err)
	assert.Equal(t, KindSig, arg.Kind)
	assert.Same(t, priv, arg.Signer)

	arg, err = Coerce(ABIInput{Name: "s", Type: "sig"}, priv.Serialize())
	require.NoError(t, err)
	assert.Equal(t, priv.Serialize(), arg.Signer.Serialize())

	_, err = arg.Data()
	assert.ErrorIs(t, err, ErrNotEncodable)

	_, err = Coerce(ABIInput{Name: "s", Type: "sig"}, 7)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce_UnknownType(t *testing.T) {
	_, err := Coerce(ABIInput{Name: "x", Type: "tuple"}, 1)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerceNamed_MissingArgument(t *testing.T) {
	inputs := []ABIInput{{Name: "a", Type: "int"}, {Name: "b", Type: "bool"}}
	_, err := CoerceNamed(inputs, map[string]interface{}{"a": 1})
	assert.ErrorIs(t, err, ErrMissingArgument)

	args, err := CoerceNamed(inputs, map[string]interface{}{"a": 1, "b": false, "extra": "ignored"})
	require.NoError(t, err)
	assert.Len(t, args, 2)
}

// --- Redeem script ---

func TestRedeemScript(t *testing.T) {
	a := loadArtifact(t)
	sender, err := ec.NewPrivateKey()
	require.NoError(t, err)
	recipient, err := ec.NewPrivateKey()
	require.NoError(t, err)
	senderPub := sender.PubKey().Compressed()
	recipientPub := recipient.PubKey().Compressed()

	redeem, err := RedeemScriptFromValues(a, []interface{}{senderPub, hex.EncodeToString(recipientPub), 500000})
	require.NoError(t, err)

	body, err := AssembleASM(a.Bytecode)
	require.NoError(t, err)

	var want []byte
	want = append(want, 0x03, 0x20, 0xa1, 0x07)
	want = append(want, 0x21)
	want = append(want, recipientPub...)
	want = append(want, 0x21)
	want = append(want, senderPub...)
	want = append(want, body...)
	assert.Equal(t, want, redeem)
}

func TestRedeemScript_ArgCount(t *testing.T) {
	a := loadArtifact(t)
	_, err := RedeemScriptFromValues(a, []interface{}{1})
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestLockingBytecode(t *testing.T) {
	redeem := []byte{0x51}

	p2sh := LockingBytecode(redeem, false)
	require.Len(t, p2sh, 23)
	assert.Equal(t, []byte{0xa9, 0x14}, p2sh[:2])
	assert.Equal(t, byte(0x87), p2sh[22])

	p2sh32 := LockingBytecode(redeem, true)
	require.Len(t, p2sh32, 35)
	assert.Equal(t, []byte{0xaa, 0x20}, p2sh32[:2])
	assert.Equal(t, byte(0x87), p2sh32[34])
}

func TestSelector(t *testing.T) {
	assert.Equal(t, []byte{0x00}, Selector(0))
	assert.Equal(t, []byte{0x51}, Selector(1))
	assert.Equal(t, []byte{0x01, 0x11}, Selector(17))
}
