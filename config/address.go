package config

import (
	"strings"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress accepts a 0x-prefixed 20 byte hex address. All-lower and
// all-upper case carry no checksum; mixed case must be a valid EIP-55 checksum.
func ValidateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return ethav.ErrorTypeFormat
	}
	body := addr[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	return errors.WithStack(ethav.Validate(addr))
}
