package tx

import "fmt"

// TokenOutputSatoshis is the value given to token outputs that do not specify one.
const TokenOutputSatoshis = uint64(1000)

// OutputSpec describes one requested output: either a value output to an
// address, optionally carrying a token, or a data-carrier output.
type OutputSpec struct {
	To       string
	Satoshis uint64
	Token    *Token
	OpReturn [][]byte
}

// IsOpReturn reports whether the output is a data carrier.
func (o *OutputSpec) IsOpReturn() bool {
	return len(o.OpReturn) > 0
}

// Validate checks that exactly one output kind is populated.
func (o *OutputSpec) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil output", ErrInvalidOutput)
	}
	if o.IsOpReturn() {
		if o.To != "" || o.Satoshis != 0 || o.Token != nil {
			return fmt.Errorf("%w: OP_RETURN output cannot carry an address, value or token", ErrInvalidOutput)
		}
		return nil
	}
	if o.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidOutput)
	}
	if o.Token != nil {
		if err := ValidateToken(o.Token); err != nil {
			return err
		}
	}
	if o.Value() < DustLimit {
		return fmt.Errorf("%w: %d sat is below the dust limit %d", ErrInvalidOutput, o.Satoshis, DustLimit)
	}
	if o.Value() > MaxSatoshis {
		return fmt.Errorf("%w: %d sat exceeds the money supply", ErrInvalidOutput, o.Satoshis)
	}
	return nil
}

// Value returns the output's satoshi amount after applying the token default.
func (o *OutputSpec) Value() uint64 {
	if o.Token != nil && o.Satoshis == 0 {
		return TokenOutputSatoshis
	}
	return o.Satoshis
}
