package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingengine/libs/auth"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

type StatusChanger interface {
	UpdateStatus(ctx context.Context, cmd lifecycle.UpdateStatusCommand) (model.Booking, error)
	CheckIn(ctx context.Context, cmd lifecycle.CheckInCommand) (model.Booking, error)
}

type StatusHandler struct {
	lifecycle StatusChanger
	logger    *slog.Logger
}

func NewStatusHandler(l StatusChanger, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{lifecycle: l, logger: logger}
}

type updateStatusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

type checkInRequest struct {
	BookingID string `json:"booking_id"`
}

// businessClaims returns the caller's business when the token belongs to a
// member of it.
func businessClaims(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !claims.IsBusinessMember(claims.BusinessID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return claims.BusinessID, true
}

func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// UpdateStatus serves business members changing any status of their
// business's bookings, and customers cancelling their own.
func (h *StatusHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Sub == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateStatusRequest
	if err := decodeStrict(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	cmd := lifecycle.UpdateStatusCommand{
		BookingID: strings.TrimSpace(req.BookingID),
		Status:    model.Status(strings.TrimSpace(req.Status)),
		Reason:    strings.TrimSpace(req.Reason),
	}
	if claims.IsBusinessMember(claims.BusinessID) {
		cmd.BusinessID = claims.BusinessID
	} else {
		cmd.CustomerID = claims.Sub
	}

	b, err := h.lifecycle.UpdateStatus(r.Context(), cmd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

func (h *StatusHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID, ok := businessClaims(w, r)
	if !ok {
		return
	}

	var req checkInRequest
	if err := decodeStrict(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	b, err := h.lifecycle.CheckIn(r.Context(), lifecycle.CheckInCommand{
		BookingID:  strings.TrimSpace(req.BookingID),
		BusinessID: businessID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}
