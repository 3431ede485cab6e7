package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/constituency-streets/internal/errors"
)

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps an error from the services onto an HTTP status.
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, apperrors.HTTPStatus(err), err.Error())
}
