package EVMRPC

import (
	"context"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"wardenbridge/types"
)

const defaultReceiptPoll = 2 * time.Second

// Client is a connection to one ledger endpoint.
type Client struct {
	endpoint string
	poa      bool
	chainID  *big.Int
	rpc      *rpc.Client
	eth      *ethclient.Client
}

// Connect dials the endpoint and performs the eth_chainId handshake.
func Connect(ctx context.Context, endpoint string, poa bool) (*Client, error) {
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, types.ConnectionError(endpoint, err)
	}
	eth := ethclient.NewClient(rc)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, types.ConnectionError(endpoint, err)
	}

	return &Client{
		endpoint: endpoint,
		poa:      poa,
		chainID:  chainID,
		rpc:      rc,
		eth:      eth,
	}, nil
}

// ConnectAny returns the first endpoint of the list that accepts the handshake.
func ConnectAny(ctx context.Context, endpoints []string, poa bool) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.Mark(errors.New("no rpc endpoints configured"), types.ErrConnection)
	}

	var errs error
	for _, url := range endpoints {
		client, err := Connect(ctx, url, poa)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", url).Msg("Error connecting to endpoint")
			errs = errors.CombineErrors(errs, err)
			continue
		}
		return client, nil
	}
	return nil, errs
}

// WithClient runs f against each endpoint in order until one succeeds.
func WithClient[T any](ctx context.Context, endpoints []string, poa bool, f func(client *Client) (T, error)) (res T, err error) {
	err = errors.Mark(errors.New("no rpc endpoints configured"), types.ErrConnection)
	for _, url := range endpoints {
		var client *Client
		client, err = Connect(ctx, url, poa)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", url).Msg("Error connecting to endpoint")
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
	}
	return
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) POA() bool {
	return c.poa
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, types.NotFoundError("receipt " + txHash.Hex())
	}
	return receipt, err
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return c.eth.FilterLogs(ctx, q)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// AccountNonce is the pending nonce of addr, as the node sees it.
func (c *Client) AccountNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, addr)
}

// SubmitSigned broadcasts an already signed transaction.
func (c *Client) SubmitSigned(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// Balance is the native balance of addr at the latest block.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, nil)
}

// WaitForReceipt polls for the receipt every poll interval until timeout.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout, poll time.Duration) (*ethtypes.Receipt, error) {
	if poll <= 0 {
		poll = defaultReceiptPoll
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var receipt *ethtypes.Receipt
	err := retry.Do(
		func() error {
			r, err := c.Receipt(waitCtx, txHash)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		},
		retry.Context(waitCtx),
		retry.Attempts(uint(timeout/poll)+1),
		retry.Delay(poll),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.CombineErrors(types.TimeoutError(txHash.Hex()), err)
	}
	return receipt, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
