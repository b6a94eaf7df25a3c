package tx

import (
	"bytes"
	"fmt"
	"sort"
)

// tokenPlan is the token accounting for one build: per-category balances and
// the token change outputs that return surplus fungible amounts.
type tokenPlan struct {
	change []*OutputSpec
}

type categoryBalance struct {
	in, out  uint64
	genesis  bool
	minting  bool
	inputs   []*NFT
	outputs  []*NFT
	consumed []bool
}

// planTokens checks token conservation between inputs and outputs and
// returns the token change outputs. Outputs are never modified.
func planTokens(inputs []*UTXO, outputs []*OutputSpec, changeAddr string, allowBurn bool) (*tokenPlan, error) {
	balances := make(map[string]*categoryBalance)
	get := func(cat string) *categoryBalance {
		b, ok := balances[cat]
		if !ok {
			b = &categoryBalance{}
			balances[cat] = b
		}
		return b
	}

	for i, in := range inputs {
		// A category is created by spending the output at index 0 of the
		// transaction whose id becomes the category.
		if in.Vout == 0 {
			get(in.TxID).genesis = true
		}
		if in.Token == nil {
			continue
		}
		if err := ValidateToken(in.Token); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		b := get(in.Token.Category)
		b.in += in.Token.Amount
		if in.Token.NFT != nil {
			b.inputs = append(b.inputs, in.Token.NFT)
			if in.Token.NFT.Capability == CapabilityMinting {
				b.minting = true
			}
		}
	}

	for i, out := range outputs {
		if out.Token == nil {
			continue
		}
		b, ok := balances[out.Token.Category]
		if !ok {
			return nil, fmt.Errorf("%w: output %d spends category %s with no matching input", ErrTokenBalance, i, out.Token.Category)
		}
		b.out += out.Token.Amount
		if out.Token.NFT != nil {
			b.outputs = append(b.outputs, out.Token.NFT)
		}
	}

	cats := make([]string, 0, len(balances))
	for cat := range balances {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	plan := &tokenPlan{}
	for _, cat := range cats {
		b := balances[cat]
		if b.out > b.in && !b.minting && !b.genesis {
			return nil, fmt.Errorf("%w: category %s outputs %d fungible tokens but inputs hold %d",
				ErrTokenBalance, cat, b.out, b.in)
		}
		if err := b.matchNFTs(cat); err != nil {
			return nil, err
		}
		if !allowBurn {
			for i, used := range b.consumed {
				if !used {
					return nil, fmt.Errorf("%w: input NFT (%s, capability %s) of category %s has no output",
						ErrTokenBalance, hexOrEmpty(b.inputs[i].Commitment), b.inputs[i].Capability, cat)
				}
			}
		}
		if b.in > b.out {
			if changeAddr == "" {
				return nil, fmt.Errorf("%w: token change requires a change address", ErrInvalidOutput)
			}
			plan.change = append(plan.change, &OutputSpec{
				To:       changeAddr,
				Satoshis: TokenOutputSatoshis,
				Token:    &Token{Category: cat, Amount: b.in - b.out},
			})
		}
	}
	return plan, nil
}

// matchNFTs pairs every output NFT with an input NFT that may produce it.
// Identical NFTs pass through first; remaining outputs are derived from a
// mutable parent (consumed once) or a minting parent (reusable).
func (b *categoryBalance) matchNFTs(cat string) error {
	b.consumed = make([]bool, len(b.inputs))
	pending := make([]*NFT, 0, len(b.outputs))

	for _, out := range b.outputs {
		matched := false
		for i, in := range b.inputs {
			if b.consumed[i] || in.Capability != out.Capability || !bytes.Equal(in.Commitment, out.Commitment) {
				continue
			}
			b.consumed[i] = true
			matched = true
			break
		}
		if !matched {
			pending = append(pending, out)
		}
	}

	for _, out := range pending {
		if b.genesis {
			continue
		}
		matched := false
		for i, in := range b.inputs {
			if in.Capability == CapabilityMinting {
				matched = true
				break
			}
			if in.Capability == CapabilityMutable && !b.consumed[i] && out.Capability != CapabilityMinting {
				b.consumed[i] = true
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: output NFT (%s, capability %s) of category %s has no parent input",
				ErrTokenBalance, hexOrEmpty(out.Commitment), out.Capability, cat)
		}
	}
	return nil
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "empty commitment"
	}
	return fmt.Sprintf("commitment %x", b)
}
