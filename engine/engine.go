// Package engine ties the pieces together for a wallet front end: it scans
// UTXOs into the local cache, builds and signs transactions, broadcasts them
// and drops spent outputs from the cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libcashtx-go/broadcast"
	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/network"
	"github.com/bitfsorg/libcashtx-go/tx"
)

// UTXOCache is the local UTXO set.
type UTXOCache interface {
	Put(address string, utxos []*tx.UTXO) error
	List(address string) ([]*tx.UTXO, error)
	Cached(address string) (bool, error)
	Remove(outpoints ...tx.Outpoint) (int, error)
}

// Engine is the wallet-side transaction engine.
type Engine struct {
	Chain   network.BlockchainService
	Cache   UTXOCache
	Builder *tx.Builder
	Gateway *broadcast.Gateway
	Logger  zerolog.Logger
}

// New creates an Engine. The gateway broadcasts through chain.
func New(chain network.BlockchainService, cache UTXOCache, builder *tx.Builder) *Engine {
	return &Engine{
		Chain:   chain,
		Cache:   cache,
		Builder: builder,
		Gateway: broadcast.NewGateway(chain),
		Logger:  log.Engine,
	}
}

// Refresh scans address on the network and replaces its cached UTXO set.
func (e *Engine) Refresh(ctx context.Context, address string) ([]*tx.UTXO, error) {
	utxos, err := e.Chain.ListUnspent(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("engine: scan %s: %w", address, err)
	}
	if e.Cache != nil {
		if err := e.Cache.Put(address, utxos); err != nil {
			return nil, err
		}
	}
	e.Logger.Debug().Str("address", address).Int("utxos", len(utxos)).Msg("refreshed")
	return utxos, nil
}

// Spendable returns the UTXOs of address from the cache, scanning the
// network first if the address was never cached.
func (e *Engine) Spendable(ctx context.Context, address string) ([]*tx.UTXO, error) {
	if e.Cache == nil {
		return e.Chain.ListUnspent(ctx, address)
	}
	cached, err := e.Cache.Cached(address)
	if err != nil {
		return nil, err
	}
	if !cached {
		return e.Refresh(ctx, address)
	}
	return e.Cache.List(address)
}

// SendResult reports a completed send.
type SendResult struct {
	Build     *tx.BuildResult  `json:"build"`
	Broadcast broadcast.Result `json:"broadcast"`
}

// Send builds and broadcasts req. When the network accepts the transaction
// its inputs are removed from the cache. A rejected broadcast returns the
// build alongside an error wrapping broadcast.ErrBroadcast.
func (e *Engine) Send(ctx context.Context, req *tx.BuildRequest) (*SendResult, error) {
	built, err := e.Builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &SendResult{Build: built, Broadcast: e.Gateway.Send(ctx, built.Hex)}
	if err := res.Broadcast.Err(); err != nil {
		return res, err
	}

	if e.Cache != nil {
		spent := make([]tx.Outpoint, len(req.Inputs))
		for i, in := range req.Inputs {
			spent[i] = in.Outpoint()
		}
		if _, err := e.Cache.Remove(spent...); err != nil {
			// The transaction is out; a stale cache only costs a refresh.
			e.Logger.Warn().Err(err).Str("txid", res.Broadcast.TxID).Msg("could not drop spent utxos")
		}
	}
	e.Logger.Info().
		Str("txid", res.Broadcast.TxID).
		Uint64("fee", built.Fee).
		Int("size", built.ByteSize).
		Msg("sent")
	return res, nil
}

// ErrNoCoins indicates the candidate UTXOs cannot cover the target.
var ErrNoCoins = errors.New("engine: not enough spendable coins")

// SelectCoins picks plain satoshi UTXOs, largest first, until their total
// covers target plus the fee of spending them at feePerByte. Token and
// contract outputs are never selected.
func SelectCoins(utxos []*tx.UTXO, outputs []*tx.OutputSpec, feePerByte uint64) ([]*tx.UTXO, error) {
	var candidates []*tx.UTXO
	for _, u := range utxos {
		if u.Token == nil && u.Contract == nil {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Satoshis > candidates[j].Satoshis
	})

	var target uint64
	for _, o := range outputs {
		target += o.Value()
	}

	var picked []*tx.UTXO
	var total uint64
	for _, u := range candidates {
		picked = append(picked, u)
		total += u.Satoshis
		fee := tx.EstimateFee(tx.EstimateTxSize(picked, outputs), feePerByte)
		if total >= target+fee {
			return picked, nil
		}
	}
	return nil, fmt.Errorf("%w: have %d sat in %d coins, need %d sat plus fee",
		ErrNoCoins, total, len(candidates), target)
}
