package handlers

import (
	"net/http"
)

// State returns the report of the last relay pass.
func State(reports ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := reports.LastReport()
		if report == nil {
			responseJSON(w, &APIStateResponse{
				Status:  "ok",
				Message: "no relay pass finished yet",
			}, http.StatusOK)
			return
		}

		status := "ok"
		for _, rr := range report.Roles {
			if rr != nil && rr.Error != "" {
				status = "degraded"
			}
		}
		responseJSON(w, &APIStateResponse{
			Status: status,
			Report: report,
		}, http.StatusOK)
	}
}
