package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/order"
	"github.com/xenking/salon-pos/internal/domain/session"
)

// mapError converts domain errors to an HTTP status and client message.
func mapError(err error) (int, string) {
	var (
		reqErr *requestError
		valErr *order.ValidationError
		subErr *order.SubmissionError
		extErr *session.ExternalServiceError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error()
	case errors.Is(err, session.ErrInvalidTerminal):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, customer.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, valErr.Error()
	case errors.Is(err, order.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.As(err, &subErr):
		if subErr.Message != "" {
			return http.StatusBadGateway, subErr.Message
		}
		return http.StatusBadGateway, "order could not be saved"
	case errors.As(err, &extErr):
		return http.StatusBadGateway, extErr.Source + " unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
