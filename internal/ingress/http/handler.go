// Package http implements the reference HTTP adapter over the feed and
// query coordinators: every route in the external interface table, and
// nothing else — the transport itself stays a thin translation layer.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arkbound/orderfeed/internal/feed/coordinator"
	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// Handler bundles the coordinators every route delegates to.
type Handler struct {
	feed  *coordinator.FeedCoordinator
	query *coordinator.QueryCoordinator
}

// RegisterRoutes registers every route in the external interface table
// onto mux. auth, if non-nil, wraps only the feed ingest routes.
func RegisterRoutes(mux *http.ServeMux, feed *coordinator.FeedCoordinator, query *coordinator.QueryCoordinator, auth func(http.Handler) http.Handler) {
	h := &Handler{feed: feed, query: query}

	feedHandler := func(hf http.HandlerFunc) http.Handler {
		if auth == nil {
			return hf
		}
		return auth(hf)
	}

	mux.Handle("POST /api/feed/partner-a", feedHandler(h.handleIngestSingle(domain.PartnerA)))
	mux.Handle("POST /api/feed/partner-b", feedHandler(h.handleIngestSingle(domain.PartnerB)))
	mux.Handle("POST /api/feed/partner-a/batch", feedHandler(h.handleIngestBatch(domain.PartnerA)))
	mux.Handle("POST /api/feed/partner-b/batch", feedHandler(h.handleIngestBatch(domain.PartnerB)))

	mux.HandleFunc("GET /api/orders", h.handleListOrders)
	mux.HandleFunc("GET /api/orders/stats", h.handleOrderStats)
	mux.HandleFunc("GET /api/orders/external/{partner}/{extId}", h.handleOrderByExternalID)
	mux.HandleFunc("GET /api/orders/by-partner/{partner}", h.handleOrdersByPartner)
	mux.HandleFunc("GET /api/orders/by-customer/{customerId}", h.handleOrdersByCustomer)
	mux.HandleFunc("GET /api/orders/{id}", h.handleOrderByID)

	mux.HandleFunc("GET /api/errors", h.handleListErrors)
	mux.HandleFunc("GET /api/errors/stats", h.handleErrorStats)
	mux.HandleFunc("GET /api/errors/{id}", h.handleErrorByID)

	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleIngestSingle(partner domain.PartnerID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := h.feed.ProcessSingle(r.Context(), partner, raw)
		if err != nil {
			handleError(w, err)
			return
		}
		status, body := toFeedResponse(result)
		writeJSON(w, status, body)
	}
}

func (h *Handler) handleIngestBatch(partner domain.PartnerID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raws []any
		if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array")
			return
		}

		result, err := h.feed.ProcessBatch(r.Context(), partner, raws)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResponse(result))
	}
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.FindOrders(r.Context(), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPageResponse(page))
}

func (h *Handler) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	order, ok, err := h.query.OrderByID(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Status: "success", Order: toOrderDTO(order)})
}

func (h *Handler) handleOrderByExternalID(w http.ResponseWriter, r *http.Request) {
	order, ok, err := h.query.OrderByExternalID(r.Context(), r.PathValue("partner"), r.PathValue("extId"))
	if err != nil {
		handleError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Status: "success", Order: toOrderDTO(order)})
}

func (h *Handler) handleOrdersByPartner(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.OrdersByPartner(r.Context(), r.PathValue("partner"), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPageResponse(page))
}

func (h *Handler) handleOrdersByCustomer(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.OrdersByCustomer(r.Context(), r.PathValue("customerId"), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderPageResponse(page))
}

func (h *Handler) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.OrderStatistics(r.Context(), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{Status: "success", Statistics: stats})
}

func (h *Handler) handleListErrors(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.FindErrors(r.Context(), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toErrorPageResponse(page))
}

func (h *Handler) handleErrorByID(w http.ResponseWriter, r *http.Request) {
	event, ok, err := h.query.ErrorByID(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "error event not found")
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Status: "success", Error: toErrorEventDTO(event)})
}

func (h *Handler) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.ErrorStatistics(r.Context(), r.URL.Query())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{Status: "success", Statistics: stats})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: nowRFC3339Milli()})
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrErrorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownPartner):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
