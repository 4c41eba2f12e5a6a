package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/series"
	"meterflow/backend/services/meter-service/internal/service"
	"meterflow/backend/services/meter-service/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var parseErr *parser.ParseError
	var valueErr *series.InvalidValueError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &parseErr), errors.As(err, &valueErr),
		errors.Is(err, service.ErrNoInput), errors.Is(err, service.ErrNoRecords):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytesErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, store.ErrEmpty):
		writeError(w, http.StatusNotFound, "no series loaded")
	case errors.Is(err, service.ErrBackendDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrUpstream):
		logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream backend unavailable")
	default:
		logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
