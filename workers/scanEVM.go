package workers

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"wardenbridge/EVMRPC"
	"wardenbridge/config"
	"wardenbridge/registry"
	"wardenbridge/types"
)

const (
	ScanLogs   = "logs"   // one eth_getLogs over the window
	ScanBlocks = "blocks" // walk every block and its receipts
)

type ScanResult struct {
	Head      uint64
	From      uint64
	To        uint64
	Events    []types.BridgeEvent // ascending (BlockNumber, LogIndex)
	Malformed []types.MalformedLog
}

// EventSource finds the bridge events of a binding in the last window blocks.
type EventSource interface {
	Scan(ctx context.Context, ledger Ledger, b *registry.Binding, window uint64) (*ScanResult, error)
}

type Scanner struct {
	mode       string
	retryDelay time.Duration
	log        zerolog.Logger
}

var _ EventSource = (*Scanner)(nil)

func NewScanner(mode string, logger zerolog.Logger) *Scanner {
	if mode == "" {
		mode = ScanLogs
	}
	return &Scanner{
		mode:       mode,
		retryDelay: time.Second,
		log:        logger.With().Str("component", "scanner").Logger(),
	}
}

// ScanRange returns the inclusive block range [max(0, head-window+1), head].
func ScanRange(head, window uint64) (uint64, uint64) {
	if window == 0 {
		window = config.DEFAULT_SCAN_WINDOW
	}
	if head+1 < window {
		return 0, head
	}
	return head - window + 1, head
}

func (s *Scanner) Scan(ctx context.Context, ledger Ledger, b *registry.Binding, window uint64) (*ScanResult, error) {
	head, err := ledger.HeadBlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting head block")
	}
	from, to := ScanRange(head, window)

	s.log.Debug().Str("chain", b.Name).Uint64("from", from).Uint64("to", to).Msg("scanning blocks")

	var logs []ethtypes.Log
	switch s.mode {
	case ScanBlocks:
		logs, err = s.blockLogs(ctx, ledger, from, to)
	default:
		logs, err = ledger.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{b.Address},
			Topics:    [][]common.Hash{{b.Event.ID}},
		})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scanning blocks %d to %d", from, to)
	}

	res := &ScanResult{Head: head, From: from, To: to, Events: []types.BridgeEvent{}}
	for i := range logs {
		l := &logs[i]
		if l.Removed || l.Address != b.Address || len(l.Topics) == 0 || l.Topics[0] != b.Event.ID {
			continue
		}
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}

		ev, err := decodeEvent(b, l)
		if err != nil {
			s.log.Warn().Err(err).Str("txHash", l.TxHash.Hex()).Uint("logIndex", l.Index).Msg("skipping undecodable log")
			res.Malformed = append(res.Malformed, types.MalformedLog{
				TxHash:   l.TxHash.Hex(),
				LogIndex: l.Index,
				Reason:   err.Error(),
			})
			continue
		}
		res.Events = append(res.Events, ev)
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		if res.Events[i].BlockNumber != res.Events[j].BlockNumber {
			return res.Events[i].BlockNumber < res.Events[j].BlockNumber
		}
		return res.Events[i].LogIndex < res.Events[j].LogIndex
	})

	return res, nil
}

// blockLogs collects the receipt logs of every transaction in [from, to].
func (s *Scanner) blockLogs(ctx context.Context, ledger Ledger, from, to uint64) ([]ethtypes.Log, error) {
	var logs []ethtypes.Log
	for n := from; n <= to; n++ {
		block, err := withNotFoundRetry(ctx, s.retryDelay, func() (*EVMRPC.Block, error) {
			return ledger.BlockWithTransactions(ctx, n)
		})
		if err != nil {
			return nil, err
		}

		for _, txHash := range block.Transactions {
			receipt, err := withNotFoundRetry(ctx, s.retryDelay, func() (*ethtypes.Receipt, error) {
				return ledger.Receipt(ctx, txHash)
			})
			if err != nil {
				return nil, err
			}
			for _, l := range receipt.Logs {
				logs = append(logs, *l)
			}
		}

		if n == to {
			break
		}
	}
	return logs, nil
}

// withNotFoundRetry retries f with backoff while it reports NotFound.
func withNotFoundRetry[T any](ctx context.Context, delay time.Duration, f func() (T, error)) (T, error) {
	var res T
	err := retry.Do(
		func() error {
			v, err := f()
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(config.EVM_RETRIES),
		retry.Delay(delay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, types.ErrNotFound) }),
		retry.LastErrorOnly(true),
	)
	return res, err
}

func decodeEvent(b *registry.Binding, l *ethtypes.Log) (types.BridgeEvent, error) {
	var indexed abi.Arguments
	for _, in := range b.Event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return types.BridgeEvent{}, errors.Newf("%s log has %d indexed topics, want %d", b.Event.Name, len(l.Topics)-1, len(indexed))
	}

	fields := make(map[string]interface{}, len(b.Event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return types.BridgeEvent{}, errors.Wrap(err, "decoding topics")
	}
	if err := b.Event.Inputs.UnpackIntoMap(fields, l.Data); err != nil {
		return types.BridgeEvent{}, errors.Wrap(err, "decoding data")
	}

	spec := registry.Spec(b.Role)
	return types.BridgeEvent{
		Kind:        spec.Event,
		Role:        b.Role,
		From:        addressField(fields, "from"),
		To:          addressField(fields, "to"),
		Amount:      bigField(fields, "amount"),
		Nonce:       bigField(fields, "nonce"),
		Symbol:      stringField(fields, "symbol"),
		Token:       addressField(fields, spec.TokenField),
		TxHash:      l.TxHash,
		TxIndex:     l.TxIndex,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}, nil
}

// field helpers leave the zero value when a field is absent or has another type

func addressField(fields map[string]interface{}, name string) common.Address {
	v, _ := fields[name].(common.Address)
	return v
}

func bigField(fields map[string]interface{}, name string) *big.Int {
	v, _ := fields[name].(*big.Int)
	return v
}

func stringField(fields map[string]interface{}, name string) string {
	v, _ := fields[name].(string)
	return v
}
