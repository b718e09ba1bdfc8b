package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
	"studylens-backend/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		configErr     *services.ConfigurationError
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		providerErr   *services.ProviderError
		conflictErr   *services.ConflictError
		rateLimitErr  *services.RateLimitError
	)

	switch {
	case errors.As(err, &validationErr) && validationErr.ModelOutput:
		writeJSON(w, http.StatusBadGateway, errorRespWithFields("MODEL_OUTPUT_ERROR", validationErr.Error(), validationErr.Fields, r))
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", validationErr.Error(), validationErr.Fields, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflictErr.Message, r))
	case errors.Is(err, session.ErrFeatureBusy):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "This feature is already being generated", r))
	case errors.As(err, &rateLimitErr):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimitErr.Message, r))
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusInternalServerError, errorResp("CONFIGURATION_ERROR", configErr.Message, r))
	case errors.As(err, &providerErr):
		writeJSON(w, http.StatusBadGateway, errorResp("PROVIDER_ERROR", providerErr.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
