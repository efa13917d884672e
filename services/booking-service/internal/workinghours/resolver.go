package workinghours

import (
	"log/slog"
	"strings"
	"time"
)

// Window is the resolved opening window for one calendar date.
type Window struct {
	IsOpen bool
	Open   Clock
	Close  Clock
}

func Closed() Window {
	return Window{}
}

// Bounds returns the window as instants on day's date.
func (w Window) Bounds(day time.Time) (time.Time, time.Time) {
	return w.Open.On(day), w.Close.On(day)
}

// Contains reports whether [start, end) lies inside the window on day's date.
func (w Window) Contains(day time.Time, start, end time.Time) bool {
	if !w.IsOpen {
		return false
	}
	openAt, closeAt := w.Bounds(day)
	return !start.Before(openAt) && !end.After(closeAt)
}

// Resolver turns working-hours sources into per-date windows. It never fails:
// undecodable data is logged and treated as not configured, and an unusable
// day entry is treated as closed.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// ForDate resolves the window for date's weekday. Sources are tried in order
// (for example a resource override, then its business) and the first one that
// decodes wins. When none does, the default schedule applies.
func (r *Resolver) ForDate(date time.Time, sources ...Source) Window {
	sched := r.pick(sources)
	day, ok := sched[weekdayName(date)]
	if !ok {
		return Closed()
	}
	return r.window(day)
}

func (r *Resolver) pick(sources []Source) Schedule {
	for _, src := range sources {
		if src.IsAbsent() {
			continue
		}
		sched, err := src.Schedule()
		if err != nil {
			r.logger.Warn("ignoring malformed working hours", "err", err)
			continue
		}
		if sched != nil {
			return normalize(sched)
		}
	}
	return DefaultSchedule()
}

func (r *Resolver) window(day Day) Window {
	if !day.IsOpen || day.OpenTime == "" || day.CloseTime == "" {
		return Closed()
	}
	open, ok := ParseClock(day.OpenTime)
	if !ok {
		r.logger.Warn("unparsable open time, treating day as closed", "open_time", day.OpenTime)
		return Closed()
	}
	closeAt, ok := ParseClock(day.CloseTime)
	if !ok {
		r.logger.Warn("unparsable close time, treating day as closed", "close_time", day.CloseTime)
		return Closed()
	}
	if open >= closeAt {
		return Closed()
	}
	return Window{IsOpen: true, Open: open, Close: closeAt}
}

// normalize lower-cases keys so "Monday" and "monday" both resolve.
func normalize(s Schedule) Schedule {
	out := make(Schedule, len(s))
	for k, v := range s {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func weekdayName(t time.Time) string {
	return weekdays[t.Weekday()]
}
