package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

var statusByCode = map[apperr.Code]int{
	apperr.ErrCodeInvalidInput:            http.StatusBadRequest,
	apperr.ErrCodeNotFound:                http.StatusNotFound,
	apperr.ErrCodeAccountNotFound:         http.StatusNotFound,
	apperr.ErrCodeResidentNotFound:        http.StatusNotFound,
	apperr.ErrCodeDuplicateUsername:       http.StatusConflict,
	apperr.ErrCodeAmbiguousResidentMatch:  http.StatusConflict,
	apperr.ErrCodeInvalidStatusTransition: http.StatusConflict,
	apperr.ErrCodeInvalidCredentials:      http.StatusUnauthorized,
	apperr.ErrCodeInvalidCode:             http.StatusUnauthorized,
	apperr.ErrCodeCodeExpired:             http.StatusGone,
	apperr.ErrCodeUnauthorized:            http.StatusUnauthorized,
	apperr.ErrCodeAccountInactive:         http.StatusForbidden,
	apperr.ErrCodeForbidden:               http.StatusForbidden,
	apperr.ErrCodeRateLimited:             http.StatusTooManyRequests,
	apperr.ErrCodeStorageFailure:          http.StatusInternalServerError,
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code apperr.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as {"error": {"code", "message"}}. Storage failures
// are logged and their details withheld from the client.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	code := apperr.CodeOf(err)
	status := StatusFor(code)

	message := err.Error()
	var coded *apperr.Error
	if errors.As(err, &coded) {
		message = coded.Message
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}
