package api

import (
	"net/http"
	"strconv"
	"time"
)

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 12, 0, 0, 0, h.reports.Location())
	}
	rep, err := h.reports.Daily(r.Context(), day)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(h.reports.Location())
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1900 {
			respondError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = n
	}
	if v := r.URL.Query().Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = n
	}
	rep, err := h.reports.Monthly(r.Context(), year, time.Month(month))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// rangeSales treats end as inclusive.
func (h *Handler) rangeSales(w http.ResponseWriter, r *http.Request) {
	loc := h.reports.Location()
	start, errStart := time.ParseInLocation(time.DateOnly, r.URL.Query().Get("start"), loc)
	end, errEnd := time.ParseInLocation(time.DateOnly, r.URL.Query().Get("end"), loc)
	if errStart != nil || errEnd != nil {
		respondError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}
	rep, err := h.reports.Range(r.Context(), start, end.AddDate(0, 0, 1))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}
