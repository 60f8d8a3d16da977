package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog/log"

	"wardenbridge/types"
)

// GetRelays lists relay records by status, e.g. /relays/unresolved.
func GetRelays(store RecordLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := chi.URLParam(r, "status")
		if !knownStatus(status) {
			responseJSON(w, &APIResponse{
				Status:  "error",
				Message: "unknown relay status",
				Field:   "status",
			}, http.StatusBadRequest)
			return
		}

		records, err := store.ListByStatus(status)
		if err != nil {
			log.Error().Err(err).Str("status", status).Msg("Error listing relay records")
			responseJSON(w, nil, http.StatusInternalServerError)
			return
		}

		responseJSON(w, records, http.StatusOK)
	}
}

func knownStatus(status string) bool {
	for _, s := range types.RecordStatuses {
		if s == status {
			return true
		}
	}
	return false
}
