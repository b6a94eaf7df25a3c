package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Kind classifies how a coerced argument is pushed.
type Kind int

const (
	KindBytes Kind = iota
	KindInt
	KindBool
	KindSig
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindSig:
		return "sig"
	default:
		return "bytes"
	}
}

// Arg is an argument value coerced to its declared ABI type.
//
// Signature arguments carry only the signing key; the signature itself is
// produced per input once the transaction is assembled.
type Arg struct {
	Name   string
	Type   string
	Kind   Kind
	Int    *big.Int
	Bool   bool
	Bytes  []byte
	Signer *ec.PrivateKey
}

// Data returns the stack element the argument pushes, before push encoding.
// Signature arguments return ErrNotEncodable.
func (a Arg) Data() ([]byte, error) {
	switch a.Kind {
	case KindInt:
		return EncodeScriptNum(a.Int), nil
	case KindBool:
		return EncodeBool(a.Bool), nil
	case KindSig:
		return nil, fmt.Errorf("%w: %s", ErrNotEncodable, a.Name)
	default:
		return a.Bytes, nil
	}
}

// Push returns the minimally encoded push of the argument.
func (a Arg) Push() ([]byte, error) {
	data, err := a.Data()
	if err != nil {
		return nil, err
	}
	return EncodeDataPush(data), nil
}

// Coerce converts a caller-supplied value into an Arg of the input's declared
// type. Values that cannot represent the type return ErrTypeMismatch.
func Coerce(input ABIInput, v interface{}) (Arg, error) {
	arg := Arg{Name: input.Name, Type: input.Type}
	if v == nil {
		return arg, fmt.Errorf("%w: %s", ErrMissingArgument, input.Name)
	}

	typ := strings.ToLower(input.Type)
	switch {
	case typ == "int":
		n, err := toBigInt(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		arg.Kind, arg.Int = KindInt, n

	case typ == "bool":
		b, err := toBool(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		arg.Kind, arg.Bool = KindBool, b

	case typ == "sig":
		key, err := toSigner(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		arg.Kind, arg.Signer = KindSig, key

	case typ == "string":
		switch s := v.(type) {
		case string:
			arg.Bytes = []byte(s)
		case []byte:
			arg.Bytes = s
		default:
			return arg, mismatch(input, v, nil)
		}

	case typ == "pubkey":
		b, err := toBytes(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		if len(b) != 33 && len(b) != 65 {
			return arg, mismatch(input, v, fmt.Errorf("pubkey length %d", len(b)))
		}
		arg.Bytes = b

	case typ == "datasig", typ == "bytes":
		b, err := toBytes(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		arg.Bytes = b

	case strings.HasPrefix(typ, "bytes"):
		want, err := strconv.Atoi(strings.TrimPrefix(typ, "bytes"))
		if err != nil {
			return arg, fmt.Errorf("%w: unsupported type %q", ErrTypeMismatch, input.Type)
		}
		b, err := toBytes(v)
		if err != nil {
			return arg, mismatch(input, v, err)
		}
		if len(b) != want {
			return arg, mismatch(input, v, fmt.Errorf("length %d, want %d", len(b), want))
		}
		arg.Bytes = b

	default:
		return arg, fmt.Errorf("%w: unsupported type %q", ErrTypeMismatch, input.Type)
	}
	return arg, nil
}

// CoerceAll coerces values positionally against inputs.
func CoerceAll(inputs []ABIInput, values []interface{}) ([]Arg, error) {
	if len(values) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d values for %d inputs", ErrMissingArgument, len(values), len(inputs))
	}
	args := make([]Arg, len(inputs))
	for i, in := range inputs {
		a, err := Coerce(in, values[i])
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// CoerceNamed coerces values looked up by input name. Every declared name
// must be present before any value is converted.
func CoerceNamed(inputs []ABIInput, values map[string]interface{}) ([]Arg, error) {
	for _, in := range inputs {
		if _, ok := values[in.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, in.Name)
		}
	}
	args := make([]Arg, len(inputs))
	for i, in := range inputs {
		a, err := Coerce(in, values[in.Name])
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

func mismatch(input ABIInput, v interface{}, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s (%s) from %T: %w", ErrTypeMismatch, input.Name, input.Type, v, cause)
	}
	return fmt.Errorf("%w: %s (%s) from %T", ErrTypeMismatch, input.Name, input.Type, v)
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return big.NewInt(int64(n)), nil
	case uint16:
		return big.NewInt(int64(n)), nil
	case uint32:
		return big.NewInt(int64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(n), nil
	case json.Number:
		return parseBigInt(string(n))
	case string:
		return parseBigInt(n)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("non-integral number %v", n)
		}
		return big.NewInt(int64(n)), nil
	}
	return nil, fmt.Errorf("not an integer")
}

func parseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean")
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return hex.DecodeString(strings.TrimPrefix(b, "0x"))
	}
	return nil, fmt.Errorf("not bytes")
}

func toSigner(v interface{}) (*ec.PrivateKey, error) {
	switch k := v.(type) {
	case *ec.PrivateKey:
		if k == nil {
			return nil, fmt.Errorf("nil key")
		}
		return k, nil
	case []byte, string:
		raw, err := toBytes(k)
		if err != nil {
			return nil, err
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("key length %d", len(raw))
		}
		priv, _ := ec.PrivateKeyFromBytes(raw)
		return priv, nil
	}
	return nil, fmt.Errorf("not a signing key")
}
