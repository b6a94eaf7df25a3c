package network

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bitfsorg/libcashtx-go/tx"
)

// BlockchainService is the indexer surface the wallet engine consumes.
type BlockchainService interface {
	// ListUnspent returns the UTXOs of address, token outputs included.
	ListUnspent(ctx context.Context, address string) ([]*tx.UTXO, error)

	// ListUnspentByScriptHash returns the UTXOs of an Electrum script hash.
	ListUnspentByScriptHash(ctx context.Context, scriptHash string) ([]*tx.UTXO, error)

	// GetRawTransaction returns the serialized transaction.
	GetRawTransaction(ctx context.Context, txid string) ([]byte, error)

	// BroadcastTransaction submits a raw transaction hex and returns its txid.
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)

	// GetBalance returns confirmed and unconfirmed satoshi balances.
	GetBalance(ctx context.Context, address string) (*Balance, error)

	// GetHistory returns the transactions touching address.
	GetHistory(ctx context.Context, address string) ([]*HistoryItem, error)

	// GetBlockHeight returns the height of the chain tip.
	GetBlockHeight(ctx context.Context) (int64, error)
}

// Balance is an address balance in satoshis.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// HistoryItem is one transaction in an address history. Height is zero or
// negative for mempool transactions.
type HistoryItem struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    uint64 `json:"fee,omitempty"`
}

// Header is a block header notification.
type Header struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}

// Token filters accepted by Fulcrum's listunspent and get_balance.
const (
	IncludeTokens = "include_tokens"
	TokensOnly    = "tokens_only"
	ExcludeTokens = "exclude_tokens"
)

var _ BlockchainService = (*Provider)(nil)

// unspentItem is one entry of blockchain.*.listunspent.
type unspentItem struct {
	TxHash    string     `json:"tx_hash"`
	TxPos     uint32     `json:"tx_pos"`
	Height    int64      `json:"height"`
	Value     uint64     `json:"value"`
	TokenData *tokenData `json:"token_data,omitempty"`
}

type tokenData struct {
	Category string      `json:"category"`
	Amount   json.Number `json:"amount"`
	NFT      *struct {
		Capability string `json:"capability"`
		Commitment string `json:"commitment"`
	} `json:"nft,omitempty"`
}

// ListUnspent returns the UTXOs of address including token outputs.
func (p *Provider) ListUnspent(ctx context.Context, address string) ([]*tx.UTXO, error) {
	var items []unspentItem
	if err := p.Call(ctx, "blockchain.address.listunspent", &items, address, IncludeTokens); err != nil {
		return nil, err
	}
	return convertUnspent(address, items)
}

// ListUnspentByScriptHash returns the UTXOs of an Electrum script hash. The
// returned UTXOs carry no address.
func (p *Provider) ListUnspentByScriptHash(ctx context.Context, scriptHash string) ([]*tx.UTXO, error) {
	var items []unspentItem
	if err := p.Call(ctx, "blockchain.scripthash.listunspent", &items, scriptHash, IncludeTokens); err != nil {
		return nil, err
	}
	return convertUnspent("", items)
}

func convertUnspent(address string, items []unspentItem) ([]*tx.UTXO, error) {
	utxos := make([]*tx.UTXO, len(items))
	for i, it := range items {
		u := &tx.UTXO{
			Address:  address,
			TxID:     it.TxHash,
			Vout:     it.TxPos,
			Satoshis: it.Value,
			Height:   it.Height,
		}
		if it.TokenData != nil {
			tok, err := it.TokenData.token()
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %w", ErrInvalidResponse, it.TxHash, it.TxPos, err)
			}
			u.Token = tok
		}
		utxos[i] = u
	}
	return utxos, nil
}

func (d *tokenData) token() (*tx.Token, error) {
	t := &tx.Token{Category: strings.ToLower(d.Category)}
	if d.Amount != "" {
		n, err := strconv.ParseUint(string(d.Amount), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token amount %q: %w", d.Amount, err)
		}
		t.Amount = n
	}
	if d.NFT != nil {
		capability, err := tx.ParseCapability(d.NFT.Capability)
		if err != nil {
			return nil, err
		}
		commitment, err := hex.DecodeString(d.NFT.Commitment)
		if err != nil {
			return nil, fmt.Errorf("nft commitment: %w", err)
		}
		t.NFT = &tx.NFT{Capability: capability, Commitment: commitment}
	}
	if err := tx.ValidateToken(t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetRawTransaction returns the serialized transaction.
func (p *Provider) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	var rawHex string
	if err := p.Call(ctx, "blockchain.transaction.get", &rawHex, txid, false); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction hex: %w", ErrInvalidResponse, err)
	}
	return raw, nil
}

// BroadcastTransaction submits a raw transaction and returns the txid the
// server reports.
func (p *Provider) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	var txid string
	if err := p.Call(ctx, "blockchain.transaction.broadcast", &txid, rawTxHex); err != nil {
		return "", err
	}
	return txid, nil
}

// GetBalance returns the satoshi balance of address.
func (p *Provider) GetBalance(ctx context.Context, address string) (*Balance, error) {
	var b Balance
	if err := p.Call(ctx, "blockchain.address.get_balance", &b, address); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetHistory returns the confirmed and mempool history of address.
func (p *Provider) GetHistory(ctx context.Context, address string) ([]*HistoryItem, error) {
	var items []*HistoryItem
	if err := p.Call(ctx, "blockchain.address.get_history", &items, address); err != nil {
		return nil, err
	}
	return items, nil
}

// GetBlockHeight returns the chain tip height.
func (p *Provider) GetBlockHeight(ctx context.Context) (int64, error) {
	var h Header
	if err := p.Call(ctx, "blockchain.headers.subscribe", &h); err != nil {
		return 0, err
	}
	return h.Height, nil
}

// SubscribeHeaders subscribes to new block headers and returns the current
// tip. Subscriptions live as long as the connection, so the provider must be
// in manual mode.
func (p *Provider) SubscribeHeaders(ctx context.Context, onHeader func(*Header)) (*Header, error) {
	p.mu.Lock()
	manual := p.manual
	p.mu.Unlock()
	if !manual {
		return nil, fmt.Errorf("network: header subscriptions require manual connection mode")
	}
	sub, ok := p.transport.(Subscriber)
	if !ok {
		return nil, fmt.Errorf("network: transport %T does not deliver notifications", p.transport)
	}

	const method = "blockchain.headers.subscribe"
	sub.Subscribe(method, func(_ string, params json.RawMessage) {
		var headers []*Header
		if err := json.Unmarshal(params, &headers); err != nil {
			p.Logger.Warn().Err(err).Msg("malformed header notification")
			return
		}
		for _, h := range headers {
			onHeader(h)
		}
	})

	var tip Header
	if err := p.Call(ctx, method, &tip); err != nil {
		return nil, err
	}
	return &tip, nil
}

// ScriptHash returns the Electrum script hash of locking bytecode: the
// SHA-256 digest in reversed byte order, hex encoded.
func ScriptHash(lockingBytecode []byte) string {
	h := sha256.Sum256(lockingBytecode)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}
