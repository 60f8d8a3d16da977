package EVMRPC

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"wardenbridge/types"
)

// standard extra-data is at most 32 bytes, POA sealers append their signature after it
const maxStandardExtraData = 32

// Block keeps the header fields the relayer needs plus the transaction hashes.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Time       uint64
	ExtraData  []byte
	// extra-data of POA chains, moved out of ExtraData when longer than 32 bytes
	ProofOfAuthorityData []byte
	Transactions         []common.Hash
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	ExtraData    hexutil.Bytes  `json:"extraData"`
	Transactions []struct {
		Hash common.Hash `json:"hash"`
	} `json:"transactions"`
}

// BlockWithTransactions reads block number n. POA chains are decoded from the raw
// JSON so that non-standard extra-data never fails header parsing.
func (c *Client) BlockWithTransactions(ctx context.Context, n uint64) (*Block, error) {
	if c.poa {
		return c.poaBlock(ctx, n)
	}

	block, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if errors.Is(err, ethereum.NotFound) {
		return nil, types.NotFoundError("block " + hexutil.EncodeUint64(n))
	}
	if err != nil {
		return nil, err
	}

	txs := make([]common.Hash, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		txs = append(txs, tx.Hash())
	}
	return &Block{
		Number:       block.NumberU64(),
		Hash:         block.Hash(),
		ParentHash:   block.ParentHash(),
		Time:         block.Time(),
		ExtraData:    block.Extra(),
		Transactions: txs,
	}, nil
}

func (c *Client) poaBlock(ctx context.Context, n uint64) (*Block, error) {
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(n), true); err != nil {
		return nil, err
	}
	return decodePOABlock(raw, n)
}

func decodePOABlock(raw json.RawMessage, n uint64) (*Block, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, types.NotFoundError("block " + hexutil.EncodeUint64(n))
	}

	var rb rpcBlock
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, errors.Wrapf(err, "decoding block %d", n)
	}

	block := &Block{
		Number:     uint64(rb.Number),
		Hash:       rb.Hash,
		ParentHash: rb.ParentHash,
		Time:       uint64(rb.Timestamp),
	}
	if len(rb.ExtraData) > maxStandardExtraData {
		block.ProofOfAuthorityData = rb.ExtraData
	} else {
		block.ExtraData = rb.ExtraData
	}
	for _, tx := range rb.Transactions {
		block.Transactions = append(block.Transactions, tx.Hash)
	}
	return block, nil
}
