package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Status is the /healthz response body.
type Status struct {
	OK       bool   `json:"ok"`
	Service  string `json:"service"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database"`
}

// Pinger is the one method of the connection pool the handler uses. A nil
// Pinger means the service runs without a database and only liveness is
// reported.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler reports liveness for the named service plus a bounded database
// ping. A failed ping answers 503 so the orchestrator stops routing to a
// worker that cannot reach its ledger.
func HTTPHandler(service string, database Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Service: service, Message: "ok", Database: database != nil}

		if database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := database.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "database unreachable"
				st.Database = false
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
