package types

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// sentinels, match with errors.Is
var (
	ErrConnection  = errors.New("connection error")
	ErrNotFound    = errors.New("not found")
	ErrTranslation = errors.New("translation error")
	ErrEstimation  = errors.New("gas estimation error")
	ErrTimeout     = errors.New("timeout")
	ErrReverted    = errors.New("transaction reverted")
)

func ConnectionError(endpoint string, err error) error {
	return errors.Mark(errors.Wrapf(err, "connecting to %s", endpoint), ErrConnection)
}

func NotFoundError(what string) error {
	return errors.Wrap(ErrNotFound, what)
}

// TranslationError names the missing or malformed field of an event.
func TranslationError(key string, field string) error {
	return errors.Wrapf(ErrTranslation, "event %s: field %q missing or malformed", key, field)
}

func EstimationError(method string, err error) error {
	return errors.Mark(errors.Wrapf(err, "estimating gas for %s", method), ErrEstimation)
}

func TimeoutError(txHash string) error {
	return errors.Wrapf(ErrTimeout, "no receipt for %s", txHash)
}

func RevertedError(txHash string, block uint64, gasUsed uint64) error {
	return errors.Wrap(ErrReverted, fmt.Sprintf("tx %s in block %d, gas used %d", txHash, block, gasUsed))
}
