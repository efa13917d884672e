package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/admission"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
)

type errorBody struct {
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func rejectionStatus(kind admission.Kind) int {
	switch kind {
	case admission.KindValidation:
		return http.StatusBadRequest
	case admission.KindNotFound:
		return http.StatusNotFound
	case admission.KindAdmission:
		return http.StatusForbidden
	default:
		return http.StatusConflict
	}
}

// writeError maps rejections and marked errors to their status codes. Any
// other error is logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if rej, ok := admission.AsRejection(err); ok {
		writeJSON(w, rejectionStatus(rej.Kind), errorBody{Kind: string(rej.Kind), Reason: rej.Reason})
		return
	}

	status := 0
	switch {
	case errs.Is(err, errs.ErrInvalid):
		status = http.StatusBadRequest
	case errs.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errs.Is(err, errs.ErrConflict), errs.Is(err, errs.ErrDuplicate):
		status = http.StatusConflict
	}
	if msg := errs.PublicMessage(err); status != 0 && msg != "" {
		writeJSON(w, status, errorBody{Reason: msg})
		return
	}

	logger.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
