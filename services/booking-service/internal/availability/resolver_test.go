package availability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBookings struct {
	bookings []model.Booking
	calls    int
}

func (m *memBookings) ActiveBookingsForService(_ context.Context, serviceID string, window model.Interval) ([]model.Booking, error) {
	m.calls++
	var out []model.Booking
	for _, b := range m.bookings {
		if b.ServiceID == serviceID && b.Status.IsActive() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) ActiveBookingsForResource(_ context.Context, resourceID string, window model.Interval) ([]model.Booking, error) {
	m.calls++
	var out []model.Booking
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.Status.IsActive() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

type memServices map[string]model.Service

func (m memServices) LoadService(_ context.Context, id string) (model.Service, error) {
	svc, ok := m[id]
	if !ok {
		return model.Service{}, errs.Mark(nil, errs.ErrNotFound)
	}
	return svc, nil
}

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func quietResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func intPtr(v int) *int { return &v }

func capacityService() model.Service {
	return model.Service{
		ID:                 "svc-haircut",
		BusinessID:         "biz-1",
		DurationMinutes:    60,
		MaxBookingsPerSlot: 1,
		IsActive:           true,
		Business:           model.Business{ID: "biz-1", Timezone: "UTC"},
	}
}

func tableService() model.Service {
	return model.Service{
		ID:                 "svc-dinner",
		BusinessID:         "biz-1",
		DurationMinutes:    60,
		MaxBookingsPerSlot: 1,
		ResourceType:       model.ResourceTable,
		AllowAnyResource:   true,
		IsActive:           true,
		Business:           model.Business{ID: "biz-1", Timezone: "UTC"},
		Resources: []model.Resource{
			{ID: "table-small", Type: model.ResourceTable, Capacity: intPtr(2), IsActive: true, SortOrder: 1},
			{ID: "table-large", Type: model.ResourceTable, Capacity: intPtr(6), IsActive: true, SortOrder: 2},
		},
	}
}

func at(h int) time.Time {
	return monday.Add(time.Duration(h) * time.Hour)
}

func confirmed(id, serviceID, resourceID string, start time.Time) model.Booking {
	return model.Booking{ID: id, ServiceID: serviceID, ResourceID: resourceID, Start: start, End: start.Add(time.Hour), Status: model.StatusConfirmed}
}

func availableTimes(slots []Slot) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.Time] = s.Available
	}
	return out
}

func TestDaySlots_MondayCapacityScenario(t *testing.T) {
	reader := &memBookings{bookings: []model.Booking{confirmed("b1", "svc-haircut", "", at(10))}}

	slots, err := quietResolver().DaySlots(context.Background(), reader, capacityService(), monday, 0)
	require.NoError(t, err)

	want := map[string]bool{
		"09:00": true, "10:00": false, "11:00": true, "12:00": true,
		"13:00": true, "14:00": true, "15:00": true, "16:00": true,
	}
	if diff := cmp.Diff(want, availableTimes(slots)); diff != "" {
		t.Fatalf("availability mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, slots[1].BookedCount)
	assert.Equal(t, 1, slots[1].MaxBookings)
	assert.Equal(t, ModeCapacity, slots[0].Mode)
	assert.Equal(t, 1, reader.calls, "bookings are loaded once per day")
}

func TestDaySlots_CancelledBookingFreesSlot(t *testing.T) {
	b := confirmed("b1", "svc-haircut", "", at(10))
	b.Status = model.StatusCancelled
	reader := &memBookings{bookings: []model.Booking{b}}

	slots, err := quietResolver().DaySlots(context.Background(), reader, capacityService(), monday, 0)
	require.NoError(t, err)
	assert.True(t, availableTimes(slots)["10:00"])
}

func TestDaySlots_CapacityAboveOne(t *testing.T) {
	svc := capacityService()
	svc.MaxBookingsPerSlot = 2
	reader := &memBookings{bookings: []model.Booking{
		confirmed("b1", svc.ID, "", at(10)),
		{ID: "b2", ServiceID: svc.ID, Start: at(10), End: at(11), Status: model.StatusPending},
		confirmed("b3", svc.ID, "", at(11)),
	}}

	slots, err := quietResolver().DaySlots(context.Background(), reader, svc, monday, 0)
	require.NoError(t, err)
	got := availableTimes(slots)
	assert.False(t, got["10:00"])
	assert.True(t, got["11:00"])
}

func TestDaySlots_ClosedDay(t *testing.T) {
	sunday := monday.AddDate(0, 0, -1)
	slots, err := quietResolver().DaySlots(context.Background(), &memBookings{}, capacityService(), sunday, 0)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestDaySlots_MalformedHoursUseDefault(t *testing.T) {
	svc := capacityService()
	svc.Business.WorkingHours = workinghours.Raw("{not json")
	slots, err := quietResolver().DaySlots(context.Background(), &memBookings{}, svc, monday, 0)
	require.NoError(t, err)
	assert.Len(t, slots, 8)
}

func TestDaySlots_PartyOfFourScenario(t *testing.T) {
	// Only the small table is idle at 19:00; it cannot seat four.
	svc := tableService()
	svc.Business.WorkingHours = workinghours.Structured(workinghours.Schedule{
		"monday": {IsOpen: true, OpenTime: "18:00", CloseTime: "21:00"},
	})
	reader := &memBookings{bookings: []model.Booking{confirmed("b1", svc.ID, "table-large", at(19))}}

	slots, err := quietResolver().DaySlots(context.Background(), reader, svc, monday, 4)
	require.NoError(t, err)

	want := []Slot{
		{Time: "18:00", Start: at(18), End: at(19), Available: true, Mode: ModeResource, AvailableResources: 1},
		{Time: "19:00", Start: at(19), End: at(20), Available: false, Mode: ModeResource, AvailableResources: 0},
		{Time: "20:00", Start: at(20), End: at(21), Available: true, Mode: ModeResource, AvailableResources: 1},
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}

	slots, err = quietResolver().DaySlots(context.Background(), reader, svc, monday, 2)
	require.NoError(t, err)
	assert.True(t, slots[1].Available, "a party of two fits the idle small table")
	assert.Equal(t, 1, slots[1].AvailableResources)
}

func TestDaySlots_NoActiveResourcesReportsEverySlotUnavailable(t *testing.T) {
	svc := tableService()
	for i := range svc.Resources {
		svc.Resources[i].IsActive = false
	}

	slots, err := quietResolver().DaySlots(context.Background(), &memBookings{}, svc, monday, 0)
	require.NoError(t, err)
	require.Len(t, slots, 8)
	for _, s := range slots {
		assert.False(t, s.Available)
		assert.Equal(t, 0, s.AvailableResources)
		assert.Equal(t, ModeResource, s.Mode)
	}
}

func TestDaySlots_ResourceHoursOverride(t *testing.T) {
	svc := tableService()
	svc.Resources[0].WorkingHours = workinghours.Structured(workinghours.Schedule{
		"monday": {IsOpen: true, OpenTime: "13:00", CloseTime: "17:00"},
	})

	slots, err := quietResolver().DaySlots(context.Background(), &memBookings{}, svc, monday, 0)
	require.NoError(t, err)
	byTime := map[string]int{}
	for _, s := range slots {
		byTime[s.Time] = s.AvailableResources
	}
	assert.Equal(t, 1, byTime["09:00"])
	assert.Equal(t, 2, byTime["14:00"])
}

func TestGetAvailableSlots_Idempotent(t *testing.T) {
	svc := tableService()
	reader := &memBookings{bookings: []model.Booking{confirmed("b1", svc.ID, "table-small", at(11))}}
	q := NewQuery(memServices{svc.ID: svc}, reader, quietResolver(), nil)

	first, err := q.GetAvailableSlots(context.Background(), svc.ID, monday, 2)
	require.NoError(t, err)
	second, err := q.GetAvailableSlots(context.Background(), svc.ID, monday, 2)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated calls differ (-first +second):\n%s", diff)
	}
}

func TestGetAvailableSlots_UnknownOrInactiveService(t *testing.T) {
	inactive := capacityService()
	inactive.ID = "svc-off"
	inactive.IsActive = false
	q := NewQuery(memServices{inactive.ID: inactive}, &memBookings{}, quietResolver(), nil)

	slots, err := q.GetAvailableSlots(context.Background(), "svc-missing", monday, 0)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	slots, err = q.GetAvailableSlots(context.Background(), inactive.ID, monday, 0)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestCheck_Capacity(t *testing.T) {
	svc := capacityService()
	reader := &memBookings{bookings: []model.Booking{confirmed("b1", svc.ID, "", at(10))}}
	r := quietResolver()
	ctx := context.Background()

	d, err := r.Check(ctx, reader, svc, model.Interval{Start: at(10), End: at(11)}, "", 0)
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.Equal(t, RefusalTaken, d.Refusal)
	assert.Equal(t, ReasonTaken, d.Reason)

	// Off-grid but inside hours and clear of the 10:00 booking.
	d, err = r.Check(ctx, reader, svc, model.Interval{Start: at(11).Add(30 * time.Minute), End: at(12).Add(30 * time.Minute)}, "", 0)
	require.NoError(t, err)
	assert.True(t, d.Available)

	d, err = r.Check(ctx, reader, svc, model.Interval{Start: at(16).Add(30 * time.Minute), End: at(17).Add(30 * time.Minute)}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, RefusalOutsideHours, d.Refusal)
}

func TestCheck_ResourceSelection(t *testing.T) {
	svc := tableService()
	reader := &memBookings{bookings: []model.Booking{confirmed("b1", svc.ID, "table-small", at(10))}}
	r := quietResolver()
	ctx := context.Background()
	slot := model.Interval{Start: at(10), End: at(11)}

	d, err := r.Check(ctx, reader, svc, slot, "", 2)
	require.NoError(t, err)
	assert.True(t, d.Available)
	assert.Equal(t, "table-large", d.ResourceID, "first free resource in sort order")

	d, err = r.Check(ctx, reader, svc, slot, "table-small", 2)
	require.NoError(t, err)
	assert.Equal(t, RefusalTaken, d.Refusal)

	d, err = r.Check(ctx, reader, svc, model.Interval{Start: at(12), End: at(13)}, "table-small", 4)
	require.NoError(t, err)
	assert.Equal(t, RefusalPartyTooLarge, d.Refusal)

	d, err = r.Check(ctx, reader, svc, slot, "table-elsewhere", 2)
	require.NoError(t, err)
	assert.Equal(t, RefusalUnknownResource, d.Refusal)

	svc.AllowAnyResource = false
	d, err = r.Check(ctx, reader, svc, slot, "", 2)
	require.NoError(t, err)
	assert.Equal(t, RefusalResourceRequired, d.Refusal)
}

func TestCheck_ResourceModeAllTaken(t *testing.T) {
	svc := tableService()
	reader := &memBookings{bookings: []model.Booking{
		confirmed("b1", svc.ID, "table-small", at(10)),
		confirmed("b2", svc.ID, "table-large", at(10)),
	}}
	d, err := quietResolver().Check(context.Background(), reader, svc, model.Interval{Start: at(10), End: at(11)}, "", 2)
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.Equal(t, RefusalTaken, d.Refusal)

	d, err = quietResolver().Check(context.Background(), reader, svc, model.Interval{Start: at(20), End: at(21)}, "", 2)
	require.NoError(t, err)
	assert.Equal(t, RefusalOutsideHours, d.Refusal)
}
