package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

func commonHeaders(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	commonHeaders(w, "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Error writing response")
	}
}

// responsePlain writes a bare value, balances are served this way
func responsePlain(w http.ResponseWriter, data []byte, code int) {
	commonHeaders(w, "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write(data)
}
