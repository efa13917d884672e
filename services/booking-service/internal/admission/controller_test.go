package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sunday 1 March 2026, 08:00 UTC.
var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func monday(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func tuesday(h, m int) time.Time {
	return time.Date(2026, 3, 3, h, m, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func haircut() model.Service {
	return model.Service{
		ID:                           "svc-haircut",
		BusinessID:                   "biz-1",
		Name:                         "Haircut",
		DurationMinutes:              60,
		MaxBookingsPerSlot:           1,
		MaxBookingsPerCustomerPerDay: 1,
		AllowMultipleActiveBookings:  true,
		AllowAnyResource:             true,
		IsActive:                     true,
		Business:                     model.Business{ID: "biz-1", Timezone: "UTC", AutoAcceptBookings: true},
	}
}

type harness struct {
	store    *memStore
	notifier *recordingNotifier
	trust    *recordingTrust
	ctrl     *Controller
	ids      atomic.Int64
}

func newHarness(t *testing.T, services ...model.Service) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(services...),
		notifier: &recordingNotifier{},
		trust:    &recordingTrust{},
	}
	h.ctrl = NewController(Options{
		Store: h.store,
		Identity: memIdentity{
			"alice":   {ID: "alice", EmailVerified: true, IsActive: true},
			"bob":     {ID: "bob", EmailVerified: true, IsActive: true},
			"carol":   {ID: "carol", EmailVerified: false, IsActive: true},
			"dormant": {ID: "dormant", EmailVerified: true, IsActive: false},
		},
		Notifier: h.notifier,
		Trust:    h.trust,
		Clock:    clock.NewMock(now),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID: func() string {
			return fmt.Sprintf("booking-%d", h.ids.Add(1))
		},
	})
	return h
}

func existing(id, customer, serviceID string, start time.Time, status model.Status) model.Booking {
	return model.Booking{
		ID: id, CustomerID: customer, BusinessID: "biz-1", ServiceID: serviceID,
		Start: start, End: start.Add(time.Hour), Status: status, CreatedAt: now.AddDate(0, 0, -10),
	}
}

func requireRejection(t *testing.T, err error, kind Kind) *Rejection {
	t.Helper()
	require.Error(t, err)
	rej, ok := AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	assert.Equal(t, kind, rej.Kind, rej.Reason)
	return rej
}

func TestAttemptBooking_Admits(t *testing.T) {
	h := newHarness(t, haircut())

	res, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(10, 0)})
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, "booking-1", b.ID)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.True(t, b.End.Equal(monday(11, 0)))
	assert.Equal(t, "biz-1", b.BusinessID)
	assert.Empty(t, res.Advisory)
	assert.Len(t, h.store.all(), 1)

	require.Len(t, h.notifier.booked, 1)
	assert.Equal(t, "booking-1", h.notifier.booked[0].BookingID)
	assert.Equal(t, []string{"alice"}, h.trust.invalidated)
}

func TestAttemptBooking_PendingWithoutAutoAccept(t *testing.T) {
	svc := haircut()
	svc.Business.AutoAcceptBookings = false
	h := newHarness(t, svc)

	res, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(9, 0)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Booking.Status)
}

func TestAttemptBooking_NotificationFailureDoesNotUndoBooking(t *testing.T) {
	h := newHarness(t, haircut())
	h.notifier.err = errors.New("outbox unavailable")

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	require.NoError(t, err)
	assert.Len(t, h.store.all(), 1)
}

func TestAttemptBooking_CooldownScenario(t *testing.T) {
	svc := haircut()
	svc.BookingCooldownHours = 24
	h := newHarness(t, svc)
	h.store.seed(existing("prior", "alice", svc.ID, monday(10, 0), model.StatusConfirmed))
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: tuesday(9, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Contains(t, rej.Reason, "cooldown")
	assert.Contains(t, rej.Reason, "Tue Mar 3 10:00")

	res, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: tuesday(11, 0)})
	require.NoError(t, err)
	assert.True(t, res.Booking.Start.Equal(tuesday(11, 0)))

	require.Len(t, h.notifier.rejected, 1)
	assert.Equal(t, string(KindAdmission), h.notifier.rejected[0].Kind)
}

func TestAttemptBooking_CooldownLooksBothWays(t *testing.T) {
	svc := haircut()
	svc.BookingCooldownHours = 24
	h := newHarness(t, svc)
	h.store.seed(existing("later", "alice", svc.ID, tuesday(10, 0), model.StatusPending))

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(11, 0)})
	requireRejection(t, err, KindAdmission)
}

func TestAttemptBooking_IdentityGates(t *testing.T) {
	h := newHarness(t, haircut())
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "carol", ServiceID: "svc-haircut", Start: monday(9, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Equal(t, ReasonEmailUnverified, rej.Reason)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "ghost", ServiceID: "svc-haircut", Start: monday(9, 0)})
	requireRejection(t, err, KindNotFound)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "dormant", ServiceID: "svc-haircut", Start: monday(9, 0)})
	rej = requireRejection(t, err, KindAdmission)
	assert.Equal(t, ReasonCustomerInactive, rej.Reason)
}

func noShowHistory(customer string, n int) []model.Booking {
	out := make([]model.Booking, n)
	for i := range out {
		out[i] = existing(fmt.Sprintf("ns-%d", i), customer, "svc-other", now.AddDate(0, -2, -i), model.StatusNoShow)
	}
	return out
}

func TestAttemptBooking_TrustGate(t *testing.T) {
	h := newHarness(t, haircut())
	ctx := context.Background()

	h.store.seed(noShowHistory("bob", 10)...)
	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "bob", ServiceID: "svc-haircut", Start: monday(9, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Equal(t, trust.ReasonBlocked, rej.Reason)

	h.store.seed(noShowHistory("alice", 5)...)
	res, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	require.NoError(t, err)
	assert.Equal(t, trust.ReasonLow, res.Advisory)
	assert.Equal(t, model.StatusConfirmed, res.Booking.Status, "the advisory does not change the status")
}

func TestAttemptBooking_ServiceGates(t *testing.T) {
	off := haircut()
	off.ID = "svc-off"
	off.IsActive = false
	h := newHarness(t, off)
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-missing", Start: monday(9, 0)})
	rej := requireRejection(t, err, KindNotFound)
	assert.Equal(t, ReasonServiceNotFound, rej.Reason)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-off", Start: monday(9, 0)})
	rej = requireRejection(t, err, KindNotFound)
	assert.Equal(t, ReasonServiceInactive, rej.Reason)
}

func TestAttemptBooking_TimeGates(t *testing.T) {
	svc := haircut()
	svc.AdvanceBookingDays = 7
	h := newHarness(t, svc)
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: now.Add(-time.Hour)})
	rej := requireRejection(t, err, KindValidation)
	assert.Equal(t, ReasonStartInPast, rej.Reason)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(10, 0).AddDate(0, 0, 14)})
	requireRejection(t, err, KindAdmission)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(16, 30)})
	rej = requireRejection(t, err, KindValidation)
	assert.Contains(t, rej.Reason, "outside working hours")

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: now.AddDate(0, 0, -1).Add(34 * time.Hour)})
	requireRejection(t, err, KindValidation)
}

func TestAttemptBooking_RequestValidation(t *testing.T) {
	h := newHarness(t, haircut())
	cases := []Request{
		{ServiceID: "svc-haircut", Start: monday(9, 0)},
		{CustomerID: "alice", Start: monday(9, 0)},
		{CustomerID: "alice", ServiceID: "svc-haircut"},
		{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0), PartySize: -1},
	}
	for _, req := range cases {
		_, err := h.ctrl.AttemptBooking(context.Background(), req)
		requireRejection(t, err, KindValidation)
	}
	assert.Empty(t, h.store.all())
}

func TestAttemptBooking_DailyLimit(t *testing.T) {
	h := newHarness(t, haircut())
	cancelled := existing("gone", "alice", "svc-haircut", monday(13, 0), model.StatusCancelled)
	h.store.seed(cancelled)
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	require.NoError(t, err, "cancelled bookings do not count")

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(14, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Equal(t, "You have reached the daily limit of 1 booking(s) for this service.", rej.Reason)

	_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: tuesday(14, 0)})
	require.NoError(t, err)
}

func TestAttemptBooking_BusinessDailyCap(t *testing.T) {
	svc := haircut()
	svc.Business.MaxBookingsPerUserPerDay = 2
	h := newHarness(t, svc)
	h.store.seed(
		existing("a", "alice", "svc-colour", monday(9, 0), model.StatusConfirmed),
		existing("b", "alice", "svc-nails", monday(11, 0), model.StatusPending),
	)

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(15, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Equal(t, "You have reached the maximum number of bookings (2) for this business today.", rej.Reason)
}

func TestAttemptBooking_WeeklyLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("nil means no cap", func(t *testing.T) {
		h := newHarness(t, haircut())
		h.store.seed(existing("x", "alice", "svc-haircut", monday(9, 0), model.StatusConfirmed))
		_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: tuesday(9, 0)})
		require.NoError(t, err)
	})

	t.Run("zero allows none", func(t *testing.T) {
		svc := haircut()
		svc.MaxBookingsPerCustomerPerWeek = intPtr(0)
		h := newHarness(t, svc)
		_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(9, 0)})
		requireRejection(t, err, KindAdmission)
	})

	t.Run("trailing seven days", func(t *testing.T) {
		svc := haircut()
		svc.MaxBookingsPerCustomerPerWeek = intPtr(2)
		h := newHarness(t, svc)
		h.store.seed(
			existing("w1", "alice", svc.ID, monday(9, 0), model.StatusConfirmed),
			existing("w2", "alice", svc.ID, tuesday(9, 0), model.StatusCompleted),
		)
		// Sunday 8 March is within seven local days of Monday 2 March.
		_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(9, 0).AddDate(0, 0, 6)})
		rej := requireRejection(t, err, KindAdmission)
		assert.Contains(t, rej.Reason, "weekly limit of 2")

		// Monday 9 March leaves Monday 2 March behind.
		_, err = h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(9, 0).AddDate(0, 0, 7)})
		require.NoError(t, err)
	})
}

func TestAttemptBooking_MultipleActive(t *testing.T) {
	svc := haircut()
	svc.AllowMultipleActiveBookings = false
	h := newHarness(t, svc)
	h.store.seed(existing("open", "alice", svc.ID, monday(9, 0).AddDate(0, 1, 0), model.StatusPending))

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(9, 0)})
	rej := requireRejection(t, err, KindAdmission)
	assert.Equal(t, ReasonMultipleActive, rej.Reason)
}

func TestAttemptBooking_SlotTaken(t *testing.T) {
	h := newHarness(t, haircut())
	h.store.seed(existing("theirs", "bob", "svc-haircut", monday(10, 0), model.StatusConfirmed))

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(10, 30)})
	rej := requireRejection(t, err, KindConflict)
	assert.Equal(t, ReasonSlotTaken, rej.Reason)
}

func TestAttemptBooking_PartyOfFourNeedsTheLargeTable(t *testing.T) {
	svc := haircut()
	svc.ID = "svc-dinner"
	svc.ResourceType = model.ResourceTable
	svc.Resources = []model.Resource{
		{ID: "table-small", Type: model.ResourceTable, Capacity: intPtr(2), IsActive: true, SortOrder: 1},
		{ID: "table-large", Type: model.ResourceTable, Capacity: intPtr(6), IsActive: true, SortOrder: 2},
	}
	h := newHarness(t, svc)
	taken := existing("large", "bob", svc.ID, monday(12, 0), model.StatusConfirmed)
	taken.ResourceID = "table-large"
	h.store.seed(taken)
	ctx := context.Background()

	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(12, 0), PartySize: 4})
	requireRejection(t, err, KindConflict)

	res, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: svc.ID, Start: monday(13, 0), PartySize: 4})
	require.NoError(t, err)
	assert.Equal(t, "table-large", res.Booking.ResourceID)
}

func TestAttemptBooking_RetriesOnceOnCommitConflict(t *testing.T) {
	h := newHarness(t, haircut())
	h.store.forceConflicts = 1

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	require.NoError(t, err)
	assert.Len(t, h.store.all(), 1)
}

func TestAttemptBooking_SecondCommitConflictIsRejected(t *testing.T) {
	h := newHarness(t, haircut())
	h.store.forceConflicts = 2

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	rej := requireRejection(t, err, KindConflict)
	assert.Equal(t, ReasonSlotTaken, rej.Reason)
	assert.Empty(t, h.store.all())
}

func TestAttemptBooking_RetryWaitStopsWithContext(t *testing.T) {
	h := newHarness(t, haircut())
	h.ctrl.retryBackoff = time.Hour
	h.store.forceConflicts = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := h.ctrl.AttemptBooking(ctx, Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := AsRejection(err)
	assert.False(t, ok)
	assert.Less(t, time.Since(started), 10*time.Second)
	assert.Empty(t, h.store.all())
}

func TestAttemptBooking_InfrastructureErrorIsNotARejection(t *testing.T) {
	h := newHarness(t, haircut())
	h.store.historyErr = errors.New("connection reset")

	_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: "alice", ServiceID: "svc-haircut", Start: monday(9, 0)})
	require.Error(t, err)
	_, ok := AsRejection(err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, h.notifier.rejected)
}

func TestAttemptBooking_ConcurrentAttemptsOnSingleSlot(t *testing.T) {
	h := newHarness(t, haircut())

	// Hold both first commits until each transaction has read its snapshot,
	// so they genuinely race.
	var arrived atomic.Int32
	release := make(chan struct{})
	h.store.beforeCommit = func() {
		n := arrived.Add(1)
		if n == 2 {
			close(release)
		}
		if n <= 2 {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
		}
	}

	var wg sync.WaitGroup
	errsCh := make(chan error, 2)
	for _, customer := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(customer string) {
			defer wg.Done()
			_, err := h.ctrl.AttemptBooking(context.Background(), Request{CustomerID: customer, ServiceID: "svc-haircut", Start: monday(10, 0)})
			errsCh <- err
		}(customer)
	}
	wg.Wait()
	close(errsCh)

	successes, conflicts := 0, 0
	for err := range errsCh {
		if err == nil {
			successes++
			continue
		}
		if rej, ok := AsRejection(err); ok && rej.Kind == KindConflict {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, h.store.all(), 1)
}
