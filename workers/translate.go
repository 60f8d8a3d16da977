package workers

import (
	"github.com/ethereum/go-ethereum/common"

	"wardenbridge/registry"
	"wardenbridge/types"
)

// Translate maps a bridge event to the call it authorizes on the counterpart chain:
//
//	Deposit on source      -> wrap(from, to, amount, nonce, symbol, sourceToken) on destination
//	Unwrap on destination  -> withdraw(from, to, amount, nonce, symbol, destinationToken) on source
//
// Amounts are passed through in ledger native units. contract is the bridge
// contract of the counterpart chain. No action is returned for a malformed event.
func Translate(ev *types.BridgeEvent, contract common.Address) (*types.RelayAction, error) {
	key := ev.Key()
	spec := registry.Spec(ev.Role)

	switch {
	case ev.Kind != spec.Event:
		return nil, types.TranslationError(key, "kind")
	case ev.From == (common.Address{}):
		return nil, types.TranslationError(key, "from")
	case ev.To == (common.Address{}):
		return nil, types.TranslationError(key, "to")
	case ev.Amount == nil || ev.Amount.Sign() < 0:
		return nil, types.TranslationError(key, "amount")
	case ev.Nonce == nil || ev.Nonce.Sign() < 0:
		return nil, types.TranslationError(key, "nonce")
	case ev.Symbol == "":
		return nil, types.TranslationError(key, "symbol")
	case ev.Token == (common.Address{}):
		return nil, types.TranslationError(key, spec.TokenField)
	}

	target := ev.Role.Counterpart()
	return &types.RelayAction{
		Origin:   *ev,
		Target:   target,
		Contract: contract,
		Method:   registry.Spec(target).Inbound,
		Args:     []interface{}{ev.From, ev.To, ev.Amount, ev.Nonce, ev.Symbol, ev.Token},
	}, nil
}
