package wallet

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestNewWarden(t *testing.T) {
	w, err := NewWarden("0x"+testKey, testAddress)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), w.Address())

	_, err = NewWarden(testKey, "0x0000000000000000000000000000000000000001")
	require.Error(t, err)

	_, err = NewWarden("", "")
	require.Error(t, err)

	_, err = NewWarden("zz", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "zz")
}

func TestWardenNeverPrintsKey(t *testing.T) {
	w, err := NewWarden(testKey, "")
	require.NoError(t, err)

	for _, s := range []string{fmt.Sprint(w), fmt.Sprintf("%v", w), fmt.Sprintf("%s", w)} {
		assert.NotContains(t, s, testKey[:16])
	}
}

func TestSignTx(t *testing.T) {
	w, err := NewWarden(testKey, "")
	require.NoError(t, err)

	chainID := big.NewInt(97)
	to := common.HexToAddress("0xe7f1725e7734ce288f8367e1bb143e90bb3f0512")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 3, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})

	signed, err := w.SignTx(chainID, tx)
	require.NoError(t, err)

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
	assert.Equal(t, uint64(3), signed.Nonce())
}
