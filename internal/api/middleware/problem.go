package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// problem mirrors the api package's RFC 7807 body so middleware can reject
// requests without importing it.
type problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) error {
	body := problem{
		Type:          fmt.Sprintf("https://correlator.io/problems/%d", status),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: GetCorrelationID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(body)
}
