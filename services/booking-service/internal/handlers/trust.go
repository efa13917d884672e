package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingengine/libs/auth"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/trust"
)

type TrustReporter interface {
	Breakdown(ctx context.Context, customerID string) (trust.Report, error)
}

// CustomerRelations limits business members to customers of their business.
type CustomerRelations interface {
	BusinessHasCustomer(ctx context.Context, businessID, customerID string) (bool, error)
}

type trustResponse struct {
	trust.Report
	Booking trust.Decision `json:"booking"`
}

type TrustHandler struct {
	trust     TrustReporter
	relations CustomerRelations
	logger    *slog.Logger
}

func NewTrustHandler(t TrustReporter, relations CustomerRelations, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{trust: t, relations: relations, logger: logger}
}

// Score returns the caller's own trust breakdown. Staff and owners may look up
// a customer_id that has booked with their business; anyone else reads as not
// found.
func (h *TrustHandler) Score(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	customerID := claims.Sub
	if requested := strings.TrimSpace(r.URL.Query().Get("customer_id")); requested != "" && requested != claims.Sub {
		if !claims.IsBusinessMember(claims.BusinessID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		related, err := h.relations.BusinessHasCustomer(r.Context(), claims.BusinessID, requested)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if !related {
			writeError(w, r, h.logger, errs.Public(errs.ErrNotFound, "customer not found"))
			return
		}
		customerID = requested
	}
	if customerID == "" {
		http.Error(w, "customer_id required", http.StatusBadRequest)
		return
	}

	report, err := h.trust.Breakdown(r.Context(), customerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trustResponse{Report: report, Booking: trust.CanMakeBooking(report.Score)})
}
