package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/security"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("body", nil, fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var be *apperrors.BrokerError
	switch {
	case apperrors.Is(err, apperrors.ErrInputValidation),
		apperrors.Is(err, apperrors.ErrEmptyStrategy),
		apperrors.Is(err, apperrors.ErrUnknownUnderlying):
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrStrategyNotFound),
		apperrors.Is(err, apperrors.ErrPresetNotFound),
		apperrors.Is(err, apperrors.ErrLegNotFound),
		apperrors.Is(err, apperrors.ErrDataNotFound):
		return http.StatusNotFound
	case apperrors.As(err, &be),
		apperrors.Is(err, apperrors.ErrChainUnavailable),
		apperrors.Is(err, apperrors.ErrNotAuthenticated),
		apperrors.Is(err, apperrors.ErrSessionExpired):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := security.MaskSensitive(err.Error())
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Str("error", msg).Str("path", r.URL.Path).Msg("Request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
