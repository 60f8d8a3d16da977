package handlers

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog/log"

	"wardenbridge/EVMRPC"
	"wardenbridge/registry"
	"wardenbridge/types"
)

// Balance returns the warden's native balance in wei on the chain of a role,
// the gas funds every relay transaction is paid from.
func Balance(reg *registry.Registry, warden common.Address) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := types.ParseChainRole(chi.URLParam(r, "role"))
		if err != nil {
			responsePlain(w, []byte("unknown role"), http.StatusBadRequest)
			return
		}
		b, err := reg.Resolve(role)
		if err != nil {
			responsePlain(w, []byte("unknown role"), http.StatusBadRequest)
			return
		}

		balance, err := EVMRPC.WithClient(r.Context(), b.Endpoints, b.POA, func(client *EVMRPC.Client) (*big.Int, error) {
			return client.Balance(r.Context(), warden)
		})
		if err != nil {
			log.Error().Err(err).Str("role", role.String()).Msg("Error getting balance")
			responsePlain(w, []byte("error"), http.StatusInternalServerError)
			return
		}

		responsePlain(w, []byte(balance.String()), http.StatusOK)
	}
}
