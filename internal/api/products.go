package api

import (
	"net/http"
	"strconv"

	"pharmapos/m/domain"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/ledger"
	"pharmapos/m/internal/packaging"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	products, err := h.catalog.List(r.Context(), domain.ProductFilter{
		IncludeInactive: includeInactive,
		Query:           r.URL.Query().Get("q"),
	})
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	var req catalog.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req catalog.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.catalog.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type stockRequest struct {
	// Mode is "receive" (add a delivery) or "adjust" (set the counted total).
	Mode     string `json:"mode"`
	Boxes    int64  `json:"boxes"`
	Sheets   int64  `json:"sheets"`
	Pieces   int64  `json:"pieces"`
	NewTotal *int64 `json:"new_total,omitempty"`
	Note     string `json:"note"`
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		p   domain.Product
		err error
	)
	switch req.Mode {
	case "receive", "":
		p, err = h.catalog.ReceiveStock(r.Context(), id, packaging.Quantity{Boxes: req.Boxes, Sheets: req.Sheets, Pieces: req.Pieces}, req.Note)
	case "adjust":
		if req.NewTotal == nil {
			respondError(w, http.StatusBadRequest, "new_total is required when adjusting")
			return
		}
		p, err = h.catalog.AdjustStock(r.Context(), id, *req.NewTotal, req.Note)
	default:
		respondError(w, http.StatusBadRequest, "mode must be receive or adjust")
		return
	}
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) archiveProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	p, err := h.catalog.ArchiveProduct(r.Context(), id, req.Note)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) restoreProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.catalog.RestoreProduct(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.LowStock(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	rep, err := h.catalog.ImportCSV(r.Context(), http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (h *Handler) productMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if _, err := h.catalog.Get(r.Context(), id); err != nil {
		h.respondFailure(w, err)
		return
	}
	entries, err := ledger.History(r.Context(), h.store, id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if entries == nil {
		entries = []domain.StockMovementEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) reconcileProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	rec, err := ledger.Reconcile(r.Context(), h.store, id)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
