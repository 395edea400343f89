package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

type errorPayload struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

// statusForCode сопоставляет код domain.ErrorCode с HTTP-статусом.
func statusForCode(code string) int {
	switch code {
	case "validation":
		return http.StatusBadRequest
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_transition", "conflict":
		return http.StatusConflict
	case "persistence":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет ошибку в едином конверте. Внутренние детали наружу не уходят.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	code := domain.ErrorCode(err)
	status := statusForCode(code)

	payload := errorPayload{
		Code:      code,
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		payload.Fields = verr.Fields
		payload.Message = domain.ErrValidation.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"request_id": payload.RequestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request failed")
		payload.Message = http.StatusText(status)
	}

	writeJSON(w, status, errorBody{Error: payload})
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, status, errorBody{Error: errorPayload{
		Code:      code,
		Message:   http.StatusText(status),
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
