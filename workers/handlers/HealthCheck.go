package handlers

import (
	"net/http"
	"time"
)

var now = time.Now

// HealthCheck reports the relay loop alive while the last pass started less than
// staleAfter ago. Before the first pass finishes the service counts as starting.
func HealthCheck(reports ReportSource, staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := reports.LastReport()
		if report == nil {
			responseJSON(w, &APIResponse{
				Status:  "ok",
				Message: "starting",
			}, http.StatusOK)
			return
		}

		age := now().Sub(report.StartedAt)
		if staleAfter > 0 && age > staleAfter {
			responseJSON(w, &APIResponse{
				Status:  "stale",
				Message: "last relay pass started " + age.Truncate(time.Second).String() + " ago",
			}, http.StatusServiceUnavailable)
			return
		}

		responseJSON(w, &APIResponse{
			Status: "ok",
		}, http.StatusOK)
	}
}
