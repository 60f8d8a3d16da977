package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"wardenbridge/config"
	"wardenbridge/types"
)

// RoleSpec is the fixed per-role lookup: what a role emits for its counterpart
// and what it exposes for its counterpart to call.
type RoleSpec struct {
	Event      types.EventKind
	Inbound    string
	TokenField string // event field carrying the token address
}

var roleTable = map[types.ChainRole]RoleSpec{
	types.RoleSource:      {Event: types.EventDeposit, Inbound: "withdraw", TokenField: "sourceToken"},
	types.RoleDestination: {Event: types.EventUnwrap, Inbound: "wrap", TokenField: "destinationToken"},
}

func Spec(role types.ChainRole) RoleSpec {
	return roleTable[role]
}

// event fields every bridge event must declare, token field comes from RoleSpec
var eventFields = []string{"from", "to", "amount", "nonce", "symbol"}

// inbound function arguments: from, to, amount, nonce, symbol, token
var inboundTypes = []byte{abi.AddressTy, abi.AddressTy, abi.UintTy, abi.UintTy, abi.StringTy, abi.AddressTy}

// ContractInfo is the contract_info.json document.
type ContractInfo struct {
	Source      ContractEntry `json:"source"`
	Destination ContractEntry `json:"destination"`
	Warden      WardenEntry   `json:"warden"`
}

type ContractEntry struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

type WardenEntry struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// Binding is everything needed to talk to the bridge contract of one role.
type Binding struct {
	Role      types.ChainRole
	Name      string
	Address   common.Address
	ABI       abi.ABI
	Event     abi.Event  // emitted here, acted upon on the counterpart
	Inbound   abi.Method // called here by the warden
	Endpoints []string
	ChainID   *big.Int // nil means ask the node
	POA       bool
}

type Registry struct {
	bindings map[types.ChainRole]*Binding
	warden   WardenEntry
}

func ReadContractInfo(path string) (*ContractInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read contract info")
	}
	var info ContractInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, "failed to decode contract info %s", path)
	}
	return &info, nil
}

// Load reads cfg.ContractInfo and builds the registry.
func Load(cfg *config.Configuration) (*Registry, error) {
	info, err := ReadContractInfo(cfg.ContractInfo)
	if err != nil {
		return nil, err
	}
	return New(info, cfg)
}

func New(info *ContractInfo, cfg *config.Configuration) (*Registry, error) {
	r := &Registry{
		bindings: make(map[types.ChainRole]*Binding, len(types.AllRoles)),
		warden:   info.Warden,
	}
	// config overrides the warden entry
	if cfg.Warden.Address != "" {
		r.warden.Address = cfg.Warden.Address
	}
	if cfg.Warden.PrivateKey != "" {
		r.warden.PrivateKey = cfg.Warden.PrivateKey
	}
	if r.warden.Address != "" {
		if err := config.ValidateAddress(r.warden.Address); err != nil {
			return nil, errors.Wrapf(err, "invalid warden address %q", r.warden.Address)
		}
	}

	entries := map[types.ChainRole]ContractEntry{
		types.RoleSource:      info.Source,
		types.RoleDestination: info.Destination,
	}
	for _, role := range types.AllRoles {
		b, err := newBinding(role, entries[role], cfg.Chain(role.String()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s", role)
		}
		r.bindings[role] = b
	}
	return r, nil
}

func newBinding(role types.ChainRole, entry ContractEntry, chain *config.ChainConfig) (*Binding, error) {
	if entry.Address == "" {
		return nil, errors.New("contract address missing")
	}
	if err := config.ValidateAddress(entry.Address); err != nil {
		return nil, errors.Wrapf(err, "invalid contract address %q", entry.Address)
	}
	if len(entry.ABI) == 0 {
		return nil, errors.New("contract abi missing")
	}
	parsed, err := abi.JSON(bytes.NewReader(entry.ABI))
	if err != nil {
		return nil, errors.Wrap(err, "invalid contract abi")
	}

	spec := roleTable[role]
	event, ok := parsed.Events[string(spec.Event)]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", spec.Event)
	}
	if err := checkEvent(event, spec); err != nil {
		return nil, err
	}
	inbound, ok := parsed.Methods[spec.Inbound]
	if !ok {
		return nil, fmt.Errorf("abi has no %s function", spec.Inbound)
	}
	if err := checkInbound(inbound); err != nil {
		return nil, err
	}

	b := &Binding{
		Role:    role,
		Address: common.HexToAddress(entry.Address),
		ABI:     parsed,
		Event:   event,
		Inbound: inbound,
		Name:    role.String(),
	}
	if chain != nil {
		b.Name = chain.Name
		b.Endpoints = chain.RPCList
		b.POA = chain.POA
		if chain.ChainID > 0 {
			b.ChainID = big.NewInt(chain.ChainID)
		}
	}
	return b, nil
}

func checkEvent(event abi.Event, spec RoleSpec) error {
	declared := make(map[string]bool, len(event.Inputs))
	for _, in := range event.Inputs {
		declared[in.Name] = true
	}
	for _, name := range append(eventFields, spec.TokenField) {
		if !declared[name] {
			return fmt.Errorf("%s event has no %q field", event.Name, name)
		}
	}
	return nil
}

// the argument order is not guessed: a function that does not take
// (address, address, uint, uint, string, address) is rejected
func checkInbound(method abi.Method) error {
	if len(method.Inputs) != len(inboundTypes) {
		return fmt.Errorf("%s takes %d arguments, want %d", method.Name, len(method.Inputs), len(inboundTypes))
	}
	for i, in := range method.Inputs {
		if in.Type.T != inboundTypes[i] {
			return fmt.Errorf("%s argument %d (%s) has type %s", method.Name, i, in.Name, in.Type.String())
		}
	}
	return nil
}

func (r *Registry) Resolve(role types.ChainRole) (*Binding, error) {
	b, ok := r.bindings[role]
	if !ok {
		return nil, fmt.Errorf("no binding for role %s", role)
	}
	return b, nil
}

// Warden returns the warden entry; the private key must never be logged.
func (r *Registry) Warden() WardenEntry {
	return r.warden
}
