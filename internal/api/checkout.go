package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmapos/m/domain"
	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/packaging"
	"pharmapos/m/internal/pricing"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/store"
)

type checkoutItem struct {
	ProductID int64 `json:"product_id"`
	Boxes     int64 `json:"boxes"`
	Sheets    int64 `json:"sheets"`
	Pieces    int64 `json:"pieces"`
}

type checkoutRequest struct {
	Items           []checkoutItem `json:"items"`
	DiscountPercent float64        `json:"discount_percent"`
	PwdSenior       bool           `json:"pwd_senior"`
	Customer        cart.Customer  `json:"customer"`
	AmountPaid      float64        `json:"amount_paid"`
	PaymentMethod   string         `json:"payment_method"`
}

type quoteResponse struct {
	Lines  []cart.Line      `json:"lines"`
	Totals pricing.Totals   `json:"totals"`
	Capped []cart.AddResult `json:"capped,omitempty"`
	Change float64          `json:"change"`
}

type checkoutResponse struct {
	*sales.Result
	Capped []cart.AddResult `json:"capped,omitempty"`
}

// buildCart replays the request against live product rows. Repeated items
// merge and are capped at stock the same way the till does it.
func (h *Handler) buildCart(ctx context.Context, req checkoutRequest) (*cart.Cart, []cart.AddResult, error) {
	c := cart.New()
	var capped []cart.AddResult
	for _, item := range req.Items {
		p, err := h.catalog.Get(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &sales.Error{Kind: sales.KindNotFound, ProductID: item.ProductID, Err: err}
		}
		if err != nil {
			return nil, nil, err
		}
		res, err := c.Add(p, packaging.Quantity{Boxes: item.Boxes, Sheets: item.Sheets, Pieces: item.Pieces})
		if err != nil {
			return nil, nil, sales.FromCartError(err, item.ProductID)
		}
		if res.Capped {
			capped = append(capped, res)
		}
	}
	if err := c.SetDiscountPercent(req.DiscountPercent); err != nil {
		return nil, nil, err
	}
	c.SetPwdSenior(req.PwdSenior)
	c.SetCustomer(req.Customer)
	return c, capped, nil
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, capped, err := h.buildCart(r.Context(), req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	totals := c.Totals().Rounded()
	respondJSON(w, http.StatusOK, quoteResponse{
		Lines:  c.Lines(),
		Totals: totals,
		Capped: capped,
		Change: pricing.Change(totals.Total, req.AmountPaid),
	})
}

// checkout commits a sale. Clients that may resubmit send an Idempotency-Key
// header; a repeated key returns the first sale instead of selling twice.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		body, done, inFlight := h.keys.begin(key)
		switch {
		case done:
			respondJSON(w, http.StatusOK, body)
			return
		case inFlight:
			respondError(w, http.StatusConflict, "a checkout with this idempotency key is in progress")
			return
		}
	}

	resp, err := h.commit(r, req)
	if err != nil {
		if key != "" {
			h.keys.forget(key)
		}
		h.respondFailure(w, err)
		return
	}
	if key != "" {
		h.keys.finish(key, resp)
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) commit(r *http.Request, req checkoutRequest) (checkoutResponse, error) {
	c, capped, err := h.buildCart(r.Context(), req)
	if err != nil {
		return checkoutResponse{}, err
	}
	res, err := h.engine.Commit(r.Context(), c, sales.Payment{
		AmountPaid:   req.AmountPaid,
		Method:       req.PaymentMethod,
		CustomerName: req.Customer.Name,
		CashierID:    currentUser(r),
	})
	if err != nil {
		return checkoutResponse{}, err
	}
	return checkoutResponse{Result: res, Capped: capped}, nil
}

type saleDetail struct {
	Transaction domain.SaleTransaction `json:"transaction"`
	LineItems   []domain.SaleLineItem  `json:"line_items"`
	Receipt     sales.Receipt          `json:"receipt"`
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.TransactionFilter{Status: q.Get("status")}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.DateOnly, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		f.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.DateOnly, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		f.To = to.AddDate(0, 0, 1)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		f.Limit = n
	}
	txns, err := h.store.ListTransactions(r.Context(), f)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if txns == nil {
		txns = []domain.SaleTransaction{}
	}
	respondJSON(w, http.StatusOK, txns)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	txn, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondSale(w, r, txn)
}

func (h *Handler) getSaleByNumber(w http.ResponseWriter, r *http.Request) {
	txn, err := h.store.GetTransactionByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondSale(w, r, txn)
}

func (h *Handler) respondSale(w http.ResponseWriter, r *http.Request, txn domain.SaleTransaction) {
	items, err := h.store.GetLineItems(r.Context(), txn.ID)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saleDetail{
		Transaction: txn,
		LineItems:   items,
		Receipt:     sales.BuildReceipt(h.profile, txn, items, cart.Customer{}),
	})
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	res, err := h.engine.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
