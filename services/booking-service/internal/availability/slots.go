package availability

import (
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
)

// GenerateSlots returns the "HH:MM" start times from open up to close,
// stepping by the service duration. A slot is kept only if it ends at or
// before close. Missing or malformed times, open >= close or a non-positive
// duration produce no slots. Every call returns a fresh slice.
func GenerateSlots(open, close string, durationMinutes int) []string {
	if durationMinutes <= 0 {
		return []string{}
	}
	openAt, ok := workinghours.ParseClock(open)
	if !ok {
		return []string{}
	}
	closeAt, ok := workinghours.ParseClock(close)
	if !ok || openAt >= closeAt {
		return []string{}
	}

	step := workinghours.Clock(durationMinutes)
	out := make([]string, 0, int(closeAt-openAt)/durationMinutes)
	for t := openAt; t+step <= closeAt; t += step {
		out = append(out, t.String())
	}
	return out
}

// slotIntervals lays slots of w onto day's calendar date. Slots step by
// elapsed time from the opening instant, so a daylight-saving shift never
// repeats or skips a start.
func slotIntervals(w workinghours.Window, duration time.Duration, day time.Time) []model.Interval {
	if !w.IsOpen || duration <= 0 {
		return nil
	}
	openAt, closeAt := w.Bounds(day)
	var out []model.Interval
	for start := openAt; !start.Add(duration).After(closeAt); start = start.Add(duration) {
		out = append(out, model.Interval{Start: start, End: start.Add(duration)})
	}
	return out
}
