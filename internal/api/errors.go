package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/report"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/store"
)

type errorBody struct {
	Error         string     `json:"error"`
	Kind          sales.Kind `json:"kind,omitempty"`
	ProductID     int64      `json:"product_id,omitempty"`
	TransactionID int64      `json:"transaction_id,omitempty"`
	Compensated   bool       `json:"compensated,omitempty"`
}

var kindStatus = map[sales.Kind]int{
	sales.KindEmptyCart:                  http.StatusBadRequest,
	sales.KindInvalidQuantity:            http.StatusBadRequest,
	sales.KindInsufficientStock:          http.StatusConflict,
	sales.KindInsufficientPayment:        http.StatusUnprocessableEntity,
	sales.KindProductArchived:            http.StatusConflict,
	sales.KindTransactionNumberExhausted: http.StatusServiceUnavailable,
	sales.KindNotFound:                   http.StatusNotFound,
	sales.KindAlreadyCancelled:           http.StatusConflict,
	sales.KindStoreUnavailable:           http.StatusServiceUnavailable,
}

// respondFailure picks a status for any error returned by the services.
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	var se *sales.Error
	if errors.As(err, &se) {
		status, ok := kindStatus[se.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			h.log.Error("sale operation failed", zap.Error(err))
		}
		respondJSON(w, status, errorBody{
			Error:         err.Error(),
			Kind:          se.Kind,
			ProductID:     se.ProductID,
			TransactionID: se.TransactionID,
			Compensated:   se.Compensated,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, catalog.ErrInvalidStock),
		errors.Is(err, cart.ErrInvalidDiscount), errors.Is(err, report.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrArchived), errors.Is(err, catalog.ErrAlreadyActive),
		errors.Is(err, store.ErrStockConflict), errors.Is(err, store.ErrNegativeStock):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}
