package workers

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardenbridge/types"
)

func TestScanRange(t *testing.T) {
	tests := []struct {
		head, window uint64
		from, to     uint64
	}{
		{1000, 5, 996, 1000},
		{4, 5, 0, 4},
		{3, 5, 0, 3},
		{0, 5, 0, 0},
		{10, 1, 10, 10},
		{1000, 0, 996, 1000},
	}
	for _, tt := range tests {
		from, to := ScanRange(tt.head, tt.window)
		assert.Equal(t, tt.from, from, "head %d window %d", tt.head, tt.window)
		assert.Equal(t, tt.to, to, "head %d window %d", tt.head, tt.window)
	}
}

func scanFixture(t *testing.T) (*fakeLedger, []common.Hash) {
	reg := testRegistry(t)
	src := binding(t, reg, types.RoleSource)
	ledger := newFakeLedger(sourceID, 1000)

	txs := []common.Hash{
		common.HexToHash("0x995"),
		common.HexToHash("0x996"),
		common.HexToHash("0x998"),
		common.HexToHash("0x1000"),
	}
	// outside the window
	ledger.addLog(makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 1, nonce: 1, symbol: "TKN", block: 995, tx: txs[0]}))
	ledger.addLog(makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 2, nonce: 2, symbol: "TKN", block: 996, index: 3, tx: txs[1]}))
	// two events in one transaction, added out of order
	ledger.addLog(makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 4, nonce: 4, symbol: "TKN", block: 998, index: 1, tx: txs[2]}))
	ledger.addLog(makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 3, nonce: 3, symbol: "TKN", block: 998, index: 0, tx: txs[2]}))
	ledger.addLog(makeLog(t, src, bridgeLog{from: addrB, to: addrA, token: addrC, amount: 5, nonce: 5, symbol: "XYZ", block: 1000, index: 7, tx: txs[3]}))

	// another contract emitting the same event
	other := makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 9, nonce: 9, symbol: "TKN", block: 997, tx: common.HexToHash("0x997")})
	other.Address = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	ledger.addLog(other)

	// right address and topic, undecodable data
	broken := makeLog(t, src, bridgeLog{block: 999, index: 2, tx: common.HexToHash("0x999")})
	broken.Data = []byte{1, 2, 3}
	ledger.addLog(broken)

	return ledger, txs
}

func TestScan(t *testing.T) {
	for _, mode := range []string{ScanLogs, ScanBlocks} {
		t.Run(mode, func(t *testing.T) {
			reg := testRegistry(t)
			src := binding(t, reg, types.RoleSource)
			ledger, txs := scanFixture(t)
			// block walk has to ride over a block that is not served yet
			ledger.missing[998] = 1

			s := NewScanner(mode, zerolog.Nop())
			s.retryDelay = time.Millisecond

			res, err := s.Scan(context.Background(), ledger, src, 5)
			require.NoError(t, err)

			assert.Equal(t, uint64(1000), res.Head)
			assert.Equal(t, uint64(996), res.From)
			assert.Equal(t, uint64(1000), res.To)

			require.Len(t, res.Events, 4)
			order := make([][2]uint64, 0, len(res.Events))
			for _, ev := range res.Events {
				order = append(order, [2]uint64{ev.BlockNumber, uint64(ev.LogIndex)})
			}
			assert.Equal(t, [][2]uint64{{996, 3}, {998, 0}, {998, 1}, {1000, 7}}, order)

			first := res.Events[0]
			assert.Equal(t, types.EventDeposit, first.Kind)
			assert.Equal(t, types.RoleSource, first.Role)
			assert.Equal(t, addrA, first.From)
			assert.Equal(t, addrB, first.To)
			assert.Equal(t, int64(2), first.Amount.Int64())
			assert.Equal(t, int64(2), first.Nonce.Int64())
			assert.Equal(t, "TKN", first.Symbol)
			assert.Equal(t, addrC, first.Token)
			assert.Equal(t, txs[1], first.TxHash)

			assert.Equal(t, int64(3), res.Events[1].Amount.Int64())
			assert.Equal(t, "XYZ", res.Events[3].Symbol)

			require.Len(t, res.Malformed, 1)
			assert.Equal(t, common.HexToHash("0x999").Hex(), res.Malformed[0].TxHash)
			assert.Equal(t, uint(2), res.Malformed[0].LogIndex)

			// no new blocks, same result
			again, err := s.Scan(context.Background(), ledger, src, 5)
			require.NoError(t, err)
			assert.Equal(t, res.Events, again.Events)
		})
	}
}

func TestScanEmptyWindow(t *testing.T) {
	reg := testRegistry(t)
	src := binding(t, reg, types.RoleSource)
	ledger := newFakeLedger(sourceID, 2)

	for _, mode := range []string{ScanLogs, ScanBlocks} {
		res, err := NewScanner(mode, zerolog.Nop()).Scan(context.Background(), ledger, src, 5)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), res.From)
		assert.Equal(t, uint64(2), res.To)
		assert.Empty(t, res.Events)
		assert.Empty(t, res.Malformed)
	}
}

func TestScanErrors(t *testing.T) {
	reg := testRegistry(t)
	src := binding(t, reg, types.RoleSource)

	t.Run("head", func(t *testing.T) {
		ledger := newFakeLedger(sourceID, 10)
		ledger.headErr = types.ConnectionError("http://source", context.DeadlineExceeded)

		_, err := NewScanner(ScanLogs, zerolog.Nop()).Scan(context.Background(), ledger, src, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConnection))
	})

	t.Run("block never served", func(t *testing.T) {
		ledger := newFakeLedger(sourceID, 10)
		ledger.missing[8] = 100

		s := NewScanner(ScanBlocks, zerolog.Nop())
		s.retryDelay = time.Millisecond

		_, err := s.Scan(context.Background(), ledger, src, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestDecodeEventWrongTopics(t *testing.T) {
	reg := testRegistry(t)
	src := binding(t, reg, types.RoleSource)

	l := makeLog(t, src, bridgeLog{from: addrA, to: addrB, token: addrC, amount: 1, nonce: 1, symbol: "TKN", block: 1})
	l.Topics = l.Topics[:2]

	_, err := decodeEvent(src, &l)
	assert.Error(t, err)
}
