package wallet

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the signing capability handed to whoever submits transactions.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
}

// Warden holds the custodial key. Formatting a Warden prints the address only.
type Warden struct {
	addr       common.Address
	privateKey *ecdsa.PrivateKey
}

var _ Signer = (*Warden)(nil)

// NewWarden parses a hex private key, with or without 0x prefix. When expected is
// not empty the derived address must match it.
func NewWarden(privateKeyHex string, expected string) (*Warden, error) {
	if privateKeyHex == "" {
		return nil, errors.New("warden private key is not set")
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		// the parse error may echo key material
		return nil, errors.New("error instantiating warden private key")
	}

	w := &Warden{
		privateKey: privateKey,
		addr:       crypto.PubkeyToAddress(privateKey.PublicKey),
	}
	if expected != "" && common.HexToAddress(expected) != w.addr {
		return nil, errors.Newf("warden key belongs to %s, configured address is %s", w.addr.Hex(), expected)
	}
	return w, nil
}

func (w *Warden) Address() common.Address {
	return w.addr
}

func (w *Warden) SignTx(chainID *big.Int, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), w.privateKey)
}

func (w *Warden) String() string {
	return "warden(" + w.addr.Hex() + ")"
}
