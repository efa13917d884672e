package admission

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/notify"
)

type versioned struct {
	booking model.Booking
	version int
}

// memStore emulates serializable snapshot isolation: each transaction reads a
// snapshot and fails at commit if a booking committed after that snapshot
// overlaps one it inserts for the same service.
type memStore struct {
	mu       sync.Mutex
	services map[string]model.Service
	bookings []versioned
	version  int

	beforeCommit   func()
	forceConflicts int
	historyErr     error
}

func newMemStore(services ...model.Service) *memStore {
	s := &memStore{services: map[string]model.Service{}}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return s
}

func (s *memStore) seed(bookings ...model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bookings {
		s.version++
		s.bookings = append(s.bookings, versioned{booking: b, version: s.version})
	}
}

func (s *memStore) all() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, v := range s.bookings {
		out = append(out, v.booking)
	}
	return out
}

func (s *memStore) CustomerHistory(_ context.Context, customerID string) ([]model.Booking, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	var out []model.Booking
	for _, b := range s.all() {
		if b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	tx := &memTx{store: s, snapshotVersion: s.version}
	for _, v := range s.bookings {
		tx.snapshot = append(tx.snapshot, v.booking)
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.beforeCommit != nil {
		s.beforeCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceConflicts > 0 {
		s.forceConflicts--
		return errs.Mark(errors.New("could not serialize access due to read/write dependencies"), errs.ErrConflict)
	}
	for _, staged := range tx.staged {
		for _, v := range s.bookings {
			if v.version > tx.snapshotVersion && v.booking.ServiceID == staged.ServiceID &&
				v.booking.Status.IsActive() && v.booking.Interval().Overlaps(staged.Interval()) {
				return errs.Mark(errors.New("could not serialize access"), errs.ErrConflict)
			}
		}
	}
	for _, staged := range tx.staged {
		s.version++
		s.bookings = append(s.bookings, versioned{booking: staged, version: s.version})
	}
	return nil
}

type memTx struct {
	store           *memStore
	snapshot        []model.Booking
	snapshotVersion int
	staged          []model.Booking
}

func (t *memTx) visible() []model.Booking {
	return append(append([]model.Booking{}, t.snapshot...), t.staged...)
}

func (t *memTx) LoadService(_ context.Context, id string) (model.Service, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	svc, ok := t.store.services[id]
	if !ok {
		return model.Service{}, errs.Mark(errors.Newf("service %s", id), errs.ErrNotFound)
	}
	return svc, nil
}

func (t *memTx) ActiveBookingsForService(_ context.Context, serviceID string, window model.Interval) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.visible() {
		if b.ServiceID == serviceID && b.Status.IsActive() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) ActiveBookingsForResource(_ context.Context, resourceID string, window model.Interval) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.visible() {
		if b.ResourceID == resourceID && b.Status.IsActive() && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func startsWithin(b model.Booking, window model.Interval) bool {
	return !b.Start.Before(window.Start) && b.Start.Before(window.End)
}

func (t *memTx) CustomerServiceBookings(_ context.Context, customerID, serviceID string, window model.Interval) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.visible() {
		if b.CustomerID == customerID && b.ServiceID == serviceID && b.Status != model.StatusCancelled && startsWithin(b, window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) CountCustomerBusinessBookings(_ context.Context, customerID, businessID string, window model.Interval) (int, error) {
	n := 0
	for _, b := range t.visible() {
		if b.CustomerID == customerID && b.BusinessID == businessID && b.Status != model.StatusCancelled && startsWithin(b, window) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) HasActiveCustomerServiceBooking(_ context.Context, customerID, serviceID string) (bool, error) {
	for _, b := range t.visible() {
		if b.CustomerID == customerID && b.ServiceID == serviceID && b.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(_ context.Context, b model.Booking) error {
	t.staged = append(t.staged, b)
	return nil
}

type memIdentity map[string]model.Customer

func (m memIdentity) Customer(_ context.Context, id string) (model.Customer, error) {
	c, ok := m[id]
	if !ok {
		return model.Customer{}, errs.Mark(errors.Newf("customer %s", id), errs.ErrNotFound)
	}
	return c, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	booked   []notify.BookedPayload
	rejected []notify.Rejection
	err      error
}

func (n *recordingNotifier) BookingCreated(_ context.Context, p notify.BookedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, p)
	return n.err
}

func (n *recordingNotifier) AdmissionRejected(_ context.Context, r notify.Rejection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, r)
	return n.err
}

type recordingTrust struct {
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingTrust) Invalidate(_ context.Context, customerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, customerID)
}
