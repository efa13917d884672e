package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/metrics"
)

type SlotFinder interface {
	GetAvailableSlots(ctx context.Context, serviceID string, date time.Time, partySize int) ([]availability.Slot, error)
}

type SlotsHandler struct {
	slots  SlotFinder
	logger *slog.Logger
}

func NewSlotsHandler(slots SlotFinder, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{slots: slots, logger: logger}
}

type slotItem struct {
	Time               string `json:"time"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Available          bool   `json:"available"`
	Mode               string `json:"mode"`
	BookedCount        int    `json:"booked_count,omitempty"`
	MaxBookings        int    `json:"max_bookings,omitempty"`
	AvailableResources int    `json:"available_resources"`
}

// List serves the public slot grid for one service and local date.
func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if serviceID == "" || dateStr == "" {
		http.Error(w, "service_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	partySize := 1
	if raw := strings.TrimSpace(q.Get("party_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid party_size", http.StatusBadRequest)
			return
		}
		partySize = n
	}

	slots, err := h.slots.GetAvailableSlots(r.Context(), serviceID, date, partySize)
	if err != nil {
		metrics.IncSlotQuery("error")
		writeError(w, r, h.logger, err)
		return
	}
	metrics.IncSlotQuery("ok")

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Time:               s.Time,
			StartTime:          s.Start.UTC().Format(time.RFC3339),
			EndTime:            s.End.UTC().Format(time.RFC3339),
			Available:          s.Available,
			Mode:               string(s.Mode),
			BookedCount:        s.BookedCount,
			MaxBookings:        s.MaxBookings,
			AvailableResources: s.AvailableResources,
		})
	}
	writeJSON(w, http.StatusOK, items)
}
