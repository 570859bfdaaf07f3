package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// errAvailabilityUnavailable is the user-visible ledger-failure message. It is
// deliberately distinct from an empty slot list: a failed check must never
// read as "everything is free".
const errAvailabilityUnavailable = "availability check unavailable"
