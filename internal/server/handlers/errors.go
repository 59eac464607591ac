package handlers

import (
	"fmt"
	"net/http"
)

// BusinessError mirrors taskTracker/internal/service.BusinessError: a
// taxonomic code, a human message, and a detail bag, mapped to an HTTP
// status by table lookup rather than type-switching per call site.
type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
}

func (b *BusinessError) Error() string {
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func NewBusinessError(code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message, Details: map[string]any{}}
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case "BAD_REQUEST":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "SYNC_CONFLICT":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func handleBusinessError(w http.ResponseWriter, err error) bool {
	be, ok := err.(*BusinessError)
	if !ok {
		return false
	}
	writeError(w, mapBusinessErrorToHTTP(be.Code), be.Message, be.Code)
	return true
}
