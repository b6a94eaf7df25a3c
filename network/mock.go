package network

import (
	"context"

	"github.com/bitfsorg/libcashtx-go/tx"
)

// MockBlockchainService is a test double for BlockchainService.
// All function fields must be set before the corresponding method is called.
type MockBlockchainService struct {
	ListUnspentFn             func(ctx context.Context, address string) ([]*tx.UTXO, error)
	ListUnspentByScriptHashFn func(ctx context.Context, scriptHash string) ([]*tx.UTXO, error)
	GetRawTransactionFn       func(ctx context.Context, txid string) ([]byte, error)
	BroadcastTransactionFn    func(ctx context.Context, rawTxHex string) (string, error)
	GetBalanceFn              func(ctx context.Context, address string) (*Balance, error)
	GetHistoryFn              func(ctx context.Context, address string) ([]*HistoryItem, error)
	GetBlockHeightFn          func(ctx context.Context) (int64, error)
}

var _ BlockchainService = (*MockBlockchainService)(nil)

func (m *MockBlockchainService) ListUnspent(ctx context.Context, address string) ([]*tx.UTXO, error) {
	return m.ListUnspentFn(ctx, address)
}
func (m *MockBlockchainService) ListUnspentByScriptHash(ctx context.Context, scriptHash string) ([]*tx.UTXO, error) {
	return m.ListUnspentByScriptHashFn(ctx, scriptHash)
}
func (m *MockBlockchainService) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	return m.GetRawTransactionFn(ctx, txid)
}
func (m *MockBlockchainService) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	return m.BroadcastTransactionFn(ctx, rawTxHex)
}
func (m *MockBlockchainService) GetBalance(ctx context.Context, address string) (*Balance, error) {
	return m.GetBalanceFn(ctx, address)
}
func (m *MockBlockchainService) GetHistory(ctx context.Context, address string) ([]*HistoryItem, error) {
	return m.GetHistoryFn(ctx, address)
}
func (m *MockBlockchainService) GetBlockHeight(ctx context.Context) (int64, error) {
	return m.GetBlockHeightFn(ctx)
}
