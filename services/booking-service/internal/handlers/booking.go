package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingengine/libs/auth"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/admission"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

type Admitter interface {
	AttemptBooking(ctx context.Context, req admission.Request) (admission.Result, error)
}

type BookingHandler struct {
	admission Admitter
	logger    *slog.Logger
}

func NewBookingHandler(a Admitter, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{admission: a, logger: logger}
}

type createBookingRequest struct {
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	ResourceID string `json:"resource_id"`
	PartySize  *int   `json:"party_size"`
}

type bookingResponse struct {
	BookingID   string `json:"booking_id"`
	CustomerID  string `json:"customer_id"`
	BusinessID  string `json:"business_id"`
	ServiceID   string `json:"service_id"`
	ResourceID  string `json:"resource_id,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CheckedInAt string `json:"checked_in_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	Reason      string `json:"cancellation_reason,omitempty"`
	Advisory    string `json:"advisory,omitempty"`
}

func toResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		BusinessID: b.BusinessID,
		ServiceID:  b.ServiceID,
		ResourceID: b.ResourceID,
		StartTime:  b.Start.UTC().Format(time.RFC3339),
		EndTime:    b.End.UTC().Format(time.RFC3339),
		Status:     string(b.Status),
		Reason:     b.CancellationReason,
	}
	if b.CheckedInAt != nil {
		resp.CheckedInAt = b.CheckedInAt.UTC().Format(time.RFC3339)
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Create books on behalf of the token subject.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Sub == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	partySize := 1
	if req.PartySize != nil {
		partySize = *req.PartySize
	}

	res, err := h.admission.AttemptBooking(r.Context(), admission.Request{
		CustomerID: claims.Sub,
		ServiceID:  strings.TrimSpace(req.ServiceID),
		Start:      start,
		ResourceID: strings.TrimSpace(req.ResourceID),
		PartySize:  partySize,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := toResponse(res.Booking)
	resp.Advisory = res.Advisory
	writeJSON(w, http.StatusCreated, resp)
}
