package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/middleware"
)

// ErrorCodeToHTTPStatus maps application error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT, domain.EUNAVAILABLE:
		return http.StatusConflict
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EMISSINGADDRESS, domain.EINVALIDADDRESS, domain.EINVALIDSTATE, domain.EINVALIDORDERREF:
		return http.StatusBadRequest
	case domain.ETRANSPORT, domain.EUPSTREAM, domain.ESHIPRECONCILE:
		return http.StatusBadGateway
	case domain.ECONFIGURATION, domain.EINTERNAL:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse writes a domain error as a JSON response.
// Internal errors are logged with full detail but reported with a generic message.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logger := middleware.GetLogger(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("code", code),
			slog.String("op", domain.ErrorOp(err)),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Warn("request rejected",
			slog.String("code", code),
			slog.String("op", domain.ErrorOp(err)),
		)
	}

	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = domain.ErrorMessage(err)
	writeJSON(w, status, body)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
	}
}
