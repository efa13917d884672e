package availability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
)

type Mode string

const (
	ModeCapacity Mode = "capacity"
	ModeResource Mode = "resource"
)

// BookingReader is the slice of the booking repository availability needs.
// Both queries return only pending and confirmed bookings intersecting window.
type BookingReader interface {
	conflict.Reader
	ActiveBookingsForService(ctx context.Context, serviceID string, window model.Interval) ([]model.Booking, error)
}

type Slot struct {
	Time               string    `json:"time"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Available          bool      `json:"available"`
	Mode               Mode      `json:"mode"`
	BookedCount        int       `json:"booked_count,omitempty"`
	MaxBookings        int       `json:"max_bookings,omitempty"`
	AvailableResources int       `json:"available_resources"`
}

// Refusal says why an exact interval cannot be booked.
type Refusal int

const (
	RefusalNone Refusal = iota
	RefusalOutsideHours
	RefusalUnknownResource
	RefusalResourceRequired
	RefusalPartyTooLarge
	RefusalTaken
)

// Decision is the outcome of checking one requested interval.
type Decision struct {
	Available  bool
	Mode       Mode
	ResourceID string
	Refusal    Refusal
	Reason     string
}

const (
	ReasonOutsideHours     = "Requested time is outside working hours"
	ReasonUnknownResource  = "Resource is not available for this service"
	ReasonResourceRequired = "Please select a resource for this service"
	ReasonPartyTooLarge    = "Party size exceeds the capacity of the selected resource"
	ReasonTaken            = "This time slot is already booked"
)

type Resolver struct {
	hours *workinghours.Resolver
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{hours: workinghours.NewResolver(logger)}
}

// DayStart returns midnight of date's calendar day in loc. Only the year,
// month and day of date are used.
func DayStart(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaySlots reports availability for every slot the business opens on date.
// Bookings are read once per day window and evaluated in memory.
func (r *Resolver) DaySlots(ctx context.Context, reader BookingReader, svc model.Service, date time.Time, partySize int) ([]Slot, error) {
	day := DayStart(date, svc.Business.Location())
	w := r.hours.ForDate(day, svc.Business.WorkingHours)
	intervals := slotIntervals(w, svc.Duration(), day)
	if len(intervals) == 0 {
		return []Slot{}, nil
	}
	openAt, closeAt := w.Bounds(day)
	dayWindow := model.Interval{Start: openAt, End: closeAt}

	if !svc.UsesResources() {
		return r.capacitySlots(ctx, reader, svc, intervals, dayWindow)
	}
	return r.resourceSlots(ctx, reader, svc, day, intervals, dayWindow, partySize)
}

func (r *Resolver) capacitySlots(ctx context.Context, reader BookingReader, svc model.Service, intervals []model.Interval, dayWindow model.Interval) ([]Slot, error) {
	bookings, err := reader.ActiveBookingsForService(ctx, svc.ID, dayWindow)
	if err != nil {
		return nil, errors.Wrapf(err, "load bookings for service %s", svc.ID)
	}
	limit := maxPerSlot(svc)
	out := make([]Slot, 0, len(intervals))
	for _, iv := range intervals {
		n := conflict.Count(bookings, iv)
		out = append(out, Slot{
			Time:        hhmm(iv.Start),
			Start:       iv.Start,
			End:         iv.End,
			Available:   n < limit,
			Mode:        ModeCapacity,
			BookedCount: n,
			MaxBookings: limit,
		})
	}
	return out, nil
}

func (r *Resolver) resourceSlots(ctx context.Context, reader BookingReader, svc model.Service, day time.Time, intervals []model.Interval, dayWindow model.Interval, partySize int) ([]Slot, error) {
	resources := activeResources(svc)
	busy := make(map[string][]model.Booking, len(resources))
	windows := make(map[string]workinghours.Window, len(resources))
	for _, res := range resources {
		bookings, err := reader.ActiveBookingsForResource(ctx, res.ID, dayWindow)
		if err != nil {
			return nil, errors.Wrapf(err, "load bookings for resource %s", res.ID)
		}
		busy[res.ID] = bookings
		windows[res.ID] = r.hours.ForDate(day, res.WorkingHours, svc.Business.WorkingHours)
	}

	out := make([]Slot, 0, len(intervals))
	for _, iv := range intervals {
		free := 0
		for _, res := range resources {
			if !windows[res.ID].Contains(day, iv.Start, iv.End) || !res.Fits(partySize) {
				continue
			}
			if conflict.Any(busy[res.ID], iv) {
				continue
			}
			free++
		}
		out = append(out, Slot{
			Time:               hhmm(iv.Start),
			Start:              iv.Start,
			End:                iv.End,
			Available:          free > 0,
			Mode:               ModeResource,
			AvailableResources: free,
		})
	}
	return out, nil
}

// Check evaluates one exact interval for admission. In resource mode an
// explicit resourceID must belong to the service; otherwise the first
// eligible free resource in sort order is assigned when the service allows
// any resource.
func (r *Resolver) Check(ctx context.Context, reader BookingReader, svc model.Service, iv model.Interval, resourceID string, partySize int) (Decision, error) {
	day := DayStart(iv.Start.In(svc.Business.Location()), svc.Business.Location())

	if !svc.UsesResources() {
		w := r.hours.ForDate(day, svc.Business.WorkingHours)
		if !w.Contains(day, iv.Start, iv.End) {
			return refuse(ModeCapacity, RefusalOutsideHours, ReasonOutsideHours), nil
		}
		bookings, err := reader.ActiveBookingsForService(ctx, svc.ID, iv)
		if err != nil {
			return Decision{}, errors.Wrapf(err, "load bookings for service %s", svc.ID)
		}
		if conflict.Count(bookings, iv) >= maxPerSlot(svc) {
			return refuse(ModeCapacity, RefusalTaken, ReasonTaken), nil
		}
		return Decision{Available: true, Mode: ModeCapacity}, nil
	}

	checker := conflict.NewChecker(reader)

	if resourceID != "" {
		res, ok := svc.Resource(resourceID)
		if !ok || !res.IsActive {
			return refuse(ModeResource, RefusalUnknownResource, ReasonUnknownResource), nil
		}
		if !r.hours.ForDate(day, res.WorkingHours, svc.Business.WorkingHours).Contains(day, iv.Start, iv.End) {
			return refuse(ModeResource, RefusalOutsideHours, ReasonOutsideHours), nil
		}
		if !res.Fits(partySize) {
			return refuse(ModeResource, RefusalPartyTooLarge, ReasonPartyTooLarge), nil
		}
		taken, err := checker.HasConflict(ctx, res.ID, iv)
		if err != nil {
			return Decision{}, err
		}
		if taken {
			return refuse(ModeResource, RefusalTaken, ReasonTaken), nil
		}
		return Decision{Available: true, Mode: ModeResource, ResourceID: res.ID}, nil
	}

	if svc.RequireResourceSelection || !svc.AllowAnyResource {
		return refuse(ModeResource, RefusalResourceRequired, ReasonResourceRequired), nil
	}

	inHours := false
	for _, res := range activeResources(svc) {
		if !r.hours.ForDate(day, res.WorkingHours, svc.Business.WorkingHours).Contains(day, iv.Start, iv.End) {
			continue
		}
		inHours = true
		if !res.Fits(partySize) {
			continue
		}
		taken, err := checker.HasConflict(ctx, res.ID, iv)
		if err != nil {
			return Decision{}, err
		}
		if !taken {
			return Decision{Available: true, Mode: ModeResource, ResourceID: res.ID}, nil
		}
	}
	if !inHours && !r.hours.ForDate(day, svc.Business.WorkingHours).Contains(day, iv.Start, iv.End) {
		return refuse(ModeResource, RefusalOutsideHours, ReasonOutsideHours), nil
	}
	return refuse(ModeResource, RefusalTaken, ReasonTaken), nil
}

func refuse(mode Mode, why Refusal, reason string) Decision {
	return Decision{Mode: mode, Refusal: why, Reason: reason}
}

func activeResources(svc model.Service) []model.Resource {
	out := make([]model.Resource, 0, len(svc.Resources))
	for _, res := range svc.Resources {
		if res.IsActive {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

func maxPerSlot(svc model.Service) int {
	if svc.MaxBookingsPerSlot < 1 {
		return model.DefaultMaxBookingsPerSlot
	}
	return svc.MaxBookingsPerSlot
}

func hhmm(t time.Time) string {
	return t.Format("15:04")
}
