package routers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tangle-node/handlers"
)

// RegisterRoutes sets up all the HTTP routes of the node
func RegisterRoutes(r *mux.Router, h *handlers.Handler, metricsHandler http.Handler) {

	// Selects sources for a new transaction and attaches it to the cluster
	r.HandleFunc("/transactions", h.SubmitTransaction).Methods("POST")

	// Unconfirmed transactions are served from memory, confirmed ones from the store
	r.HandleFunc("/transactions/{hash:[0-9a-fA-F]{64}}", h.GetTransaction).Methods("GET")

	// Current tips by trust score bucket
	r.HandleFunc("/tips", h.GetTips).Methods("GET")

	// Transactions which have not reached trust chain consensus
	r.HandleFunc("/unconfirmed", h.GetUnconfirmed).Methods("GET")

	// Cuts the wait before the next trust chain consensus cycle
	r.HandleFunc("/tcc/wake", h.WakeTCC).Methods("POST")

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}
}
