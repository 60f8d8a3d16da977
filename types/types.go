package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// there are exactly two ledgers, "source" holds the original asset,
// "destination" holds the wrapped representation

type ChainRole int

const (
	RoleSource ChainRole = iota
	RoleDestination
)

var AllRoles = []ChainRole{RoleSource, RoleDestination}

func (r ChainRole) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Counterpart is the role a relay from r is submitted to.
func (r ChainRole) Counterpart() ChainRole {
	if r == RoleSource {
		return RoleDestination
	}
	return RoleSource
}

func ParseChainRole(s string) (ChainRole, error) {
	switch strings.ToLower(s) {
	case "source":
		return RoleSource, nil
	case "destination":
		return RoleDestination, nil
	}
	return 0, fmt.Errorf("unknown chain role %q", s)
}

type EventKind string

const (
	EventDeposit EventKind = "Deposit"
	EventUnwrap  EventKind = "Unwrap"
)

// BridgeEvent is a decoded Deposit (emitted on source) or Unwrap (emitted on destination).
// Missing fields keep their zero value: nil Amount/Nonce, zero address, empty Symbol.
type BridgeEvent struct {
	Kind   EventKind
	Role   ChainRole // chain the event was emitted on
	From   common.Address
	To     common.Address
	Amount *big.Int // ledger native units, never converted
	Nonce  *big.Int
	Symbol string
	// sourceToken for Deposit, destinationToken for Unwrap
	Token common.Address

	TxHash      common.Hash
	TxIndex     uint
	BlockNumber uint64
	LogIndex    uint
}

// Key is the idempotency key of the event: origin role, tx hash and log index.
func (e *BridgeEvent) Key() string {
	return IdempotencyKey(e.Role, e.TxHash, e.LogIndex)
}

func IdempotencyKey(role ChainRole, txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%s:%d", role, strings.ToLower(txHash.Hex()), logIndex)
}

// RelayAction is the call on the counterpart chain authorized by a BridgeEvent.
// Args are positional, in the order the target function expects.
type RelayAction struct {
	Origin   BridgeEvent
	Target   ChainRole
	Contract common.Address
	Method   string
	Args     []interface{}
}

type SubmittedTransaction struct {
	Target      ChainRole
	Nonce       uint64
	Hash        common.Hash
	GasLimit    uint64
	GasPrice    *big.Int
	SubmittedAt time.Time
}

type Outcome string

const (
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeReverted       Outcome = "reverted"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeAlreadyRelayed Outcome = "already_relayed"
)

// record statuses as persisted in the relay store
const (
	StatusSubmitting = "submitting" // claimed, transaction not yet known to be sent
	StatusConfirmed  = "confirmed"
	StatusReverted   = "reverted"
	StatusUnresolved = "unresolved"
)

var RecordStatuses = []string{StatusSubmitting, StatusConfirmed, StatusReverted, StatusUnresolved}

// RelayRecord is the persisted state of one relayed event, keyed by its idempotency key.
type RelayRecord struct {
	ID           string
	Key          string
	Status       string
	OriginRole   string
	OriginTxHash string
	LogIndex     uint
	OriginBlock  uint64
	Kind         string
	Amount       string // decimal string, ledger native units
	TargetRole   string
	DestTxHash   string // filled once the relay transaction is signed
	Nonce        uint64
	TsFound      int64
	TsUpdated    int64
	Message      string // helps to track processing/errors
}

type ActionReport struct {
	Key        string    `json:"key"`
	Kind       EventKind `json:"kind"`
	OriginTx   string    `json:"originTx"`
	Outcome    Outcome   `json:"outcome"`
	DestTxHash string    `json:"destTxHash,omitempty"`
	Nonce      *uint64   `json:"nonce,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

type MalformedLog struct {
	TxHash   string `json:"txHash"`
	LogIndex uint   `json:"logIndex"`
	Reason   string `json:"reason"`
}

type RoleReport struct {
	Role        string         `json:"role"`
	Head        uint64         `json:"head"`
	FromBlock   uint64         `json:"fromBlock"`
	EventsFound int            `json:"eventsFound"`
	Malformed   []MalformedLog `json:"malformed,omitempty"`
	Actions     []ActionReport `json:"actions"`
	Error       string         `json:"error,omitempty"`
}

// Count returns how many actions ended with the given outcome.
func (r *RoleReport) Count(o Outcome) int {
	n := 0
	for _, a := range r.Actions {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

type RelayReport struct {
	StartedAt time.Time     `json:"startedAt"`
	Window    uint64        `json:"window"`
	Roles     []*RoleReport `json:"roles"`
}

func (r *RelayReport) Role(role ChainRole) *RoleReport {
	for _, rr := range r.Roles {
		if rr.Role == role.String() {
			return rr
		}
	}
	return nil
}
