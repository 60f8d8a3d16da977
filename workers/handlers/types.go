package handlers

import "wardenbridge/types"

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Report  *types.RelayReport `json:"report,omitempty"`
}

// RecordLister is the read side of the relay store.
type RecordLister interface {
	ListByStatus(status string) ([]*types.RelayRecord, error)
}

type ReportSource interface {
	LastReport() *types.RelayReport
}
