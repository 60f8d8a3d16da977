package workers

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"wardenbridge/config"
	"wardenbridge/registry"
	"wardenbridge/types"
	"wardenbridge/wallet"
)

// PreparedCall is a relay call whose gas has been resolved. Nothing is signed yet.
type PreparedCall struct {
	Action   *types.RelayAction
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Executor builds, signs and submits relay transactions for one pass.
// Nonces for a chain are assigned under that chain's lock and never go below
// the last nonce used on that chain in the pass plus one.
type Executor struct {
	signer wallet.Signer
	relay  config.RelayConfig
	log    zerolog.Logger

	// built once, read-only afterwards; each entry is guarded by its own mutex
	chains map[types.ChainRole]*chainNonce
}

type chainNonce struct {
	mu   sync.Mutex
	last uint64
	used bool
}

func NewExecutor(signer wallet.Signer, relay config.RelayConfig, logger zerolog.Logger) *Executor {
	e := &Executor{
		signer: signer,
		relay:  relay,
		log:    logger.With().Str("component", "executor").Logger(),
		chains: make(map[types.ChainRole]*chainNonce, len(types.AllRoles)),
	}
	for _, role := range types.AllRoles {
		e.chains[role] = &chainNonce{}
	}
	return e
}

// Prepare packs the call and resolves gas. Estimation runs unless both gas limit
// and gas price are configured; its failure is an EstimationError.
func (e *Executor) Prepare(ctx context.Context, ledger Ledger, target *registry.Binding, action *types.RelayAction) (*PreparedCall, error) {
	data, err := target.ABI.Pack(action.Method, action.Args...)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "packing %s arguments", action.Method), types.ErrTranslation)
	}

	gasLimit := e.relay.GasLimit
	gasPrice := e.relay.FixedGasPrice()

	if gasLimit == 0 || gasPrice == nil {
		estimated, err := ledger.EstimateGas(ctx, ethereum.CallMsg{
			From: e.signer.Address(),
			To:   &target.Address,
			Data: data,
		})
		if err != nil {
			return nil, types.EstimationError(action.Method, err)
		}
		if gasLimit == 0 {
			gasLimit = applyPercent(new(big.Int).SetUint64(estimated), e.relay.GasLimitPercent).Uint64()
		}
	}

	if gasPrice == nil {
		suggested, err := ledger.GasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "error getting suggested gas price")
		}
		gasPrice = applyPercent(suggested, e.relay.GasPricePercent)
	}

	return &PreparedCall{Action: action, Data: data, GasLimit: gasLimit, GasPrice: gasPrice}, nil
}

// Submit assigns the nonce, signs with the warden key and sends the transaction.
// A non-nil SubmittedTransaction is returned whenever a signed transaction exists,
// even if sending it failed, because the node may still have received it.
func (e *Executor) Submit(ctx context.Context, ledger Ledger, target *registry.Binding, call *PreparedCall) (*types.SubmittedTransaction, error) {
	role := target.Role
	chain, ok := e.chains[role]
	if !ok {
		return nil, errors.Newf("no nonce state for role %s", role)
	}
	chain.mu.Lock()
	defer chain.mu.Unlock()

	nonce, err := ledger.AccountNonce(ctx, e.signer.Address())
	if err != nil {
		return nil, errors.Wrap(err, "error getting nonce for wallet")
	}
	if chain.used && nonce <= chain.last {
		nonce = chain.last + 1
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: call.GasPrice,
		Gas:      call.GasLimit,
		To:       &target.Address,
		Value:    big.NewInt(0),
		Data:     call.Data,
	})
	signed, err := e.signer.SignTx(ledger.ChainID(), tx)
	if err != nil {
		return nil, errors.Wrap(err, "error signing transaction")
	}

	sub := &types.SubmittedTransaction{
		Target:      role,
		Nonce:       nonce,
		Hash:        signed.Hash(),
		GasLimit:    call.GasLimit,
		GasPrice:    call.GasPrice,
		SubmittedAt: time.Now(),
	}

	hash, err := ledger.SubmitSigned(ctx, signed)
	if err != nil {
		return sub, errors.Wrapf(err, "error sending %s", call.Action.Method)
	}
	sub.Hash = hash
	chain.last = nonce
	chain.used = true

	e.log.Info().
		Str("chain", target.Name).
		Str("method", call.Action.Method).
		Str("txHash", hash.Hex()).
		Uint64("nonce", nonce).
		Uint64("gasLimit", call.GasLimit).
		Str("gasPrice", call.GasPrice.String()).
		Msg("relay transaction sent")

	return sub, nil
}

// Await waits for the receipt of a submitted transaction and classifies it.
func (e *Executor) Await(ctx context.Context, ledger Ledger, sub *types.SubmittedTransaction) (types.Outcome, *ethtypes.Receipt, error) {
	receipt, err := ledger.WaitForReceipt(ctx, sub.Hash, e.relay.ReceiptTimeout, e.relay.ReceiptPoll)
	if err != nil {
		return types.OutcomeUnresolved, nil, err
	}
	return classify(receipt)
}

// Recheck looks up the receipt of an earlier unresolved relay. Nothing is resubmitted.
func (e *Executor) Recheck(ctx context.Context, ledger Ledger, rec *types.RelayRecord) (types.Outcome, *ethtypes.Receipt, error) {
	if rec.DestTxHash == "" {
		return types.OutcomeUnresolved, nil, errors.Newf("no destination transaction recorded for %s, check manually", rec.Key)
	}
	receipt, err := ledger.Receipt(ctx, common.HexToHash(rec.DestTxHash))
	if err != nil {
		return types.OutcomeUnresolved, nil, err
	}
	return classify(receipt)
}

func classify(receipt *ethtypes.Receipt) (types.Outcome, *ethtypes.Receipt, error) {
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return types.OutcomeConfirmed, receipt, nil
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return types.OutcomeReverted, receipt, types.RevertedError(receipt.TxHash.Hex(), block, receipt.GasUsed)
}

// applyPercent returns v * percent / 100, percent 0 keeps v.
func applyPercent(v *big.Int, percent uint64) *big.Int {
	if percent == 0 {
		return new(big.Int).Set(v)
	}
	res := new(big.Int).Mul(v, new(big.Int).SetUint64(percent))
	return res.Div(res, big.NewInt(100))
}
