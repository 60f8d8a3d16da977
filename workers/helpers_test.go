package workers

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"wardenbridge/EVMRPC"
	"wardenbridge/boltdb"
	"wardenbridge/config"
	"wardenbridge/registry"
	"wardenbridge/types"
	"wardenbridge/wallet"
)

const (
	testWardenKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testWardenAddress = "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
)

var (
	addrA     = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB     = common.HexToAddress("0x000000000000000000000000000000000000000b")
	addrC     = common.HexToAddress("0x000000000000000000000000000000000000000c")
	sourceID  = big.NewInt(43113)
	destID    = big.NewInt(97)
	gasPrice1 = big.NewInt(1_000_000_000)
)

// fakeLedger is an in-memory chain. Submitted transactions get a receipt with
// receiptStatus unless withholdReceipts is set.
type fakeLedger struct {
	mu sync.Mutex

	chainID  *big.Int
	head     uint64
	logs     []ethtypes.Log
	blocks   map[uint64]*EVMRPC.Block
	receipts map[common.Hash]*ethtypes.Receipt
	// block number -> how many more times it is reported missing
	missing map[uint64]int

	nonce            uint64
	estimateErr      error
	headErr          error
	receiptStatus    uint64
	withholdReceipts bool

	estimates   int
	filterCalls int
	sent        []*ethtypes.Transaction
	closed      bool
}

func newFakeLedger(chainID *big.Int, head uint64) *fakeLedger {
	return &fakeLedger{
		chainID:       chainID,
		head:          head,
		blocks:        map[uint64]*EVMRPC.Block{},
		receipts:      map[common.Hash]*ethtypes.Receipt{},
		missing:       map[uint64]int{},
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

// addLog puts l in the log index and in the block/receipt view used by the block walk.
func (f *fakeLedger) addLog(l ethtypes.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logs = append(f.logs, l)

	block, ok := f.blocks[l.BlockNumber]
	if !ok {
		block = &EVMRPC.Block{Number: l.BlockNumber}
		f.blocks[l.BlockNumber] = block
	}
	receipt, ok := f.receipts[l.TxHash]
	if !ok {
		receipt = &ethtypes.Receipt{TxHash: l.TxHash, Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(l.BlockNumber)}
		f.receipts[l.TxHash] = receipt
		block.Transactions = append(block.Transactions, l.TxHash)
	}
	lc := l
	receipt.Logs = append(receipt.Logs, &lc)
}

func (f *fakeLedger) ChainID() *big.Int { return f.chainID }

func (f *fakeLedger) HeadBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeLedger) BlockWithTransactions(ctx context.Context, n uint64) (*EVMRPC.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > f.head {
		return nil, types.NotFoundError("block")
	}
	if f.missing[n] > 0 {
		f.missing[n]--
		return nil, types.NotFoundError("block")
	}
	if b, ok := f.blocks[n]; ok {
		return b, nil
	}
	return &EVMRPC.Block{Number: n}, nil
}

func (f *fakeLedger) Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, types.NotFoundError("receipt")
}

func (f *fakeLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++

	var res []ethtypes.Log
	for _, l := range f.logs {
		if l.BlockNumber < q.FromBlock.Uint64() || l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && l.Address != q.Addresses[0] {
			continue
		}
		res = append(res, l)
	}
	return res, nil
}

func (f *fakeLedger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 50_000, nil
}

func (f *fakeLedger) GasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(gasPrice1), nil
}

func (f *fakeLedger) AccountNonce(ctx context.Context, addr common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

// SubmitSigned accepts only transactions signed by the warden for this chain.
func (f *fakeLedger) SubmitSigned(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return common.Hash{}, err
	}
	if from != common.HexToAddress(testWardenAddress) {
		return common.Hash{}, errors.Newf("unexpected sender %s", from.Hex())
	}

	f.sent = append(f.sent, tx)
	if !f.withholdReceipts {
		f.receipts[tx.Hash()] = &ethtypes.Receipt{
			TxHash:      tx.Hash(),
			Status:      f.receiptStatus,
			BlockNumber: new(big.Int).SetUint64(f.head + 1),
			GasUsed:     45_000,
		}
	}
	return tx.Hash(), nil
}

func (f *fakeLedger) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout, poll time.Duration) (*ethtypes.Receipt, error) {
	r, err := f.Receipt(ctx, txHash)
	if err != nil {
		return nil, errors.CombineErrors(types.TimeoutError(txHash.Hex()), err)
	}
	return r, nil
}

func (f *fakeLedger) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLedger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := &config.Configuration{ContractInfo: "../registry/testdata/contract_info.json"}
	cfg.Chains.Source = config.ChainConfig{Name: "source", RPCList: []string{"http://source"}}
	cfg.Chains.Destination = config.ChainConfig{Name: "destination", RPCList: []string{"http://destination"}}
	reg, err := registry.Load(cfg)
	require.NoError(t, err)
	return reg
}

func testWarden(t *testing.T) *wallet.Warden {
	t.Helper()
	w, err := wallet.NewWarden(testWardenKey, testWardenAddress)
	require.NoError(t, err)
	return w
}

func testStore(t *testing.T) *boltdb.Store {
	t.Helper()
	s, err := boltdb.Open(filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Window:          config.DEFAULT_SCAN_WINDOW,
		ScanMode:        ScanLogs,
		ReceiptTimeout:  time.Second,
		ReceiptPoll:     time.Millisecond,
		GasLimitPercent: 100,
		GasPricePercent: 100,
	}
}

func binding(t *testing.T, reg *registry.Registry, role types.ChainRole) *registry.Binding {
	t.Helper()
	b, err := reg.Resolve(role)
	require.NoError(t, err)
	return b
}

type bridgeLog struct {
	from, to, token common.Address
	amount, nonce   int64
	symbol          string
	block           uint64
	index           uint
	tx              common.Hash
}

// makeLog encodes a Deposit or Unwrap log the way the bridge contract emits it.
func makeLog(t *testing.T, b *registry.Binding, e bridgeLog) ethtypes.Log {
	t.Helper()
	data, err := b.Event.Inputs.NonIndexed().Pack(big.NewInt(e.amount), big.NewInt(e.nonce), e.symbol, e.token)
	require.NoError(t, err)
	return ethtypes.Log{
		Address: b.Address,
		Topics: []common.Hash{
			b.Event.ID,
			common.BytesToHash(e.from.Bytes()),
			common.BytesToHash(e.to.Bytes()),
		},
		Data:        data,
		BlockNumber: e.block,
		TxHash:      e.tx,
		Index:       e.index,
	}
}

// connectorFor hands out fixed ledgers per role.
func connectorFor(ledgers map[types.ChainRole]Ledger, fail map[types.ChainRole]error) Connector {
	return func(ctx context.Context, b *registry.Binding) (Ledger, error) {
		if err := fail[b.Role]; err != nil {
			return nil, err
		}
		return ledgers[b.Role], nil
	}
}
