package workers

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"wardenbridge/EVMRPC"
	"wardenbridge/registry"
	"wardenbridge/types"
)

// Ledger is the chain connection used by one role pass.
type Ledger interface {
	ChainID() *big.Int
	HeadBlockNumber(ctx context.Context) (uint64, error)
	BlockWithTransactions(ctx context.Context, n uint64) (*EVMRPC.Block, error)
	Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	AccountNonce(ctx context.Context, addr common.Address) (uint64, error)
	SubmitSigned(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash, timeout, poll time.Duration) (*ethtypes.Receipt, error)
	Close()
}

var _ Ledger = (*EVMRPC.Client)(nil)

// Connector opens a Ledger for a resolved binding.
type Connector func(ctx context.Context, b *registry.Binding) (Ledger, error)

// DialLedger connects to the first reachable endpoint of the binding and checks
// the chain id when one is configured.
func DialLedger(ctx context.Context, b *registry.Binding) (Ledger, error) {
	client, err := EVMRPC.ConnectAny(ctx, b.Endpoints, b.POA)
	if err != nil {
		return nil, err
	}
	if b.ChainID != nil && client.ChainID().Cmp(b.ChainID) != 0 {
		client.Close()
		return nil, types.ConnectionError(client.Endpoint(), fmt.Errorf("chain id %s, configured %s", client.ChainID(), b.ChainID))
	}
	return client, nil
}
