// Package handlers wires S1-S4 onto chi routes per spec §6.
package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message, errCode string) {
	writeJSON(w, code, map[string]string{"error": message, "code": errCode})
}
