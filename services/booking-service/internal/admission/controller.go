// Package admission decides whether a customer may book a service at a time
// and, when every gate passes, records the booking.
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
	otelx "github.com/md-rashed-zaman/bookingengine/libs/otel"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/trust"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tx is the read/write surface available inside the admission transaction.
// All reads observe the snapshot the insert commits against.
type Tx interface {
	availability.BookingReader
	LoadService(ctx context.Context, serviceID string) (model.Service, error)
	// CustomerServiceBookings returns the customer's non-cancelled bookings of
	// the service starting within window.
	CustomerServiceBookings(ctx context.Context, customerID, serviceID string, window model.Interval) ([]model.Booking, error)
	// CountCustomerBusinessBookings counts non-cancelled bookings across the
	// business starting within window.
	CountCustomerBusinessBookings(ctx context.Context, customerID, businessID string, window model.Interval) (int, error)
	HasActiveCustomerServiceBooking(ctx context.Context, customerID, serviceID string) (bool, error)
	InsertBooking(ctx context.Context, b model.Booking) error
}

// Store runs fn in one serializable transaction. A write that loses a race,
// at insert or at commit, is reported marked with errs.ErrConflict.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	trust.HistoryReader
}

// TrustCache is told when a customer's history changed.
type TrustCache interface {
	Invalidate(ctx context.Context, customerID string)
}

type Request struct {
	CustomerID string
	ServiceID  string
	Start      time.Time
	ResourceID string
	PartySize  int
}

type Result struct {
	Booking model.Booking
	// Advisory is set when the booking was accepted despite a low trust score.
	Advisory string
}

type Options struct {
	Store        Store
	Identity     identity.Provider
	Availability *availability.Resolver
	Notifier     notify.Notifier
	Trust        TrustCache
	Clock        clock.Clock
	Logger       *slog.Logger
	// NotifyTimeout bounds each best-effort notification write.
	NotifyTimeout time.Duration
	// RetryBackoff is the base wait before retrying a lost commit race.
	RetryBackoff time.Duration
	NewID        func() string
}

type Controller struct {
	store         Store
	identity      identity.Provider
	availability  *availability.Resolver
	notifier      notify.Notifier
	trust         TrustCache
	clock         clock.Clock
	logger        *slog.Logger
	notifyTimeout time.Duration
	retryBackoff  time.Duration
	newID         func() string
}

// commitAttempts is the first try plus one retry after a lost race.
const commitAttempts = 2

func NewController(opts Options) *Controller {
	c := &Controller{
		store:         opts.Store,
		identity:      opts.Identity,
		availability:  opts.Availability,
		notifier:      opts.Notifier,
		trust:         opts.Trust,
		clock:         opts.Clock,
		logger:        opts.Logger,
		notifyTimeout: opts.NotifyTimeout,
		retryBackoff:  opts.RetryBackoff,
		newID:         opts.NewID,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.availability == nil {
		c.availability = availability.NewResolver(c.logger)
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.notifyTimeout <= 0 {
		c.notifyTimeout = 2 * time.Second
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = 20 * time.Millisecond
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// AttemptBooking runs every admission gate and inserts the booking when all
// pass. Gate failures are returned as *Rejection; anything else is an
// infrastructure error.
func (c *Controller) AttemptBooking(ctx context.Context, req Request) (Result, error) {
	ctx, span := otelx.Tracer("booking-service/admission").Start(ctx, "admission.AttemptBooking")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.customer_id", req.CustomerID),
		attribute.String("booking.service_id", req.ServiceID),
	)

	started := time.Now()
	res, err := c.attempt(ctx, req)
	elapsed := time.Since(started)

	if err == nil {
		metrics.ObserveAdmission("accepted", "", elapsed)
		c.logger.InfoContext(ctx, "booking admitted",
			"booking_id", res.Booking.ID,
			"customer_id", req.CustomerID,
			"service_id", req.ServiceID,
			"status", res.Booking.Status,
		)
		if c.trust != nil {
			c.trust.Invalidate(ctx, req.CustomerID)
		}
		c.notify(ctx, func(ctx context.Context) error {
			return c.notifier.BookingCreated(ctx, notify.Booked(res.Booking, res.Advisory))
		})
		return res, nil
	}

	rej, ok := AsRejection(err)
	if !ok {
		metrics.ObserveAdmission("error", "", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
		return Result{}, err
	}
	metrics.ObserveAdmission("rejected", string(rej.Kind), elapsed)
	span.SetAttributes(attribute.String("booking.rejection_kind", string(rej.Kind)))
	c.logger.InfoContext(ctx, "booking rejected",
		"customer_id", req.CustomerID,
		"service_id", req.ServiceID,
		"kind", rej.Kind,
		"reason", rej.Reason,
	)
	c.notify(ctx, func(ctx context.Context) error {
		return c.notifier.AdmissionRejected(ctx, notify.Rejection{
			CustomerID: req.CustomerID,
			ServiceID:  req.ServiceID,
			ResourceID: req.ResourceID,
			StartTime:  req.Start.UTC(),
			Kind:       string(rej.Kind),
			Reason:     rej.Reason,
		})
	})
	return Result{}, rej
}

// notify runs send detached from the caller's cancellation. Its failure is
// only logged.
func (c *Controller) notify(ctx context.Context, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		c.logger.WarnContext(ctx, "booking notification failed", "err", err)
	}
}

func (c *Controller) attempt(ctx context.Context, req Request) (Result, error) {
	if rej := validate(req); rej != nil {
		return Result{}, rej
	}

	cust, err := c.identity.Customer(ctx, req.CustomerID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return Result{}, reject(KindNotFound, ReasonCustomerNotFound)
		}
		return Result{}, errors.Wrap(err, "load customer")
	}
	if !cust.EmailVerified {
		return Result{}, reject(KindAdmission, ReasonEmailUnverified)
	}
	if !cust.IsActive {
		return Result{}, reject(KindAdmission, ReasonCustomerInactive)
	}

	history, err := c.store.CustomerHistory(ctx, req.CustomerID)
	if err != nil {
		return Result{}, errors.Wrap(err, "load customer history")
	}
	score := trust.Compute(history, c.clock.Now())
	verdict := trust.CanMakeBooking(score.Score)
	if !verdict.Allowed {
		return Result{}, reject(KindAdmission, "%s", verdict.Reason)
	}

	var booking model.Booking
	for attempt := 1; ; attempt++ {
		err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			b, err := c.admit(ctx, tx, req)
			if err != nil {
				return err
			}
			booking = b
			return nil
		})
		if err == nil {
			return Result{Booking: booking, Advisory: verdict.Reason}, nil
		}
		if rej, ok := AsRejection(err); ok {
			return Result{}, rej
		}
		if !errs.Is(err, errs.ErrConflict) {
			return Result{}, errors.Wrap(err, "admit booking")
		}
		if attempt >= commitAttempts {
			return Result{}, reject(KindConflict, ReasonSlotTaken)
		}
		metrics.IncCommitRetry()
		c.logger.InfoContext(ctx, "admission lost a commit race, retrying",
			"customer_id", req.CustomerID,
			"service_id", req.ServiceID,
			"err", err,
		)
		if err := c.waitBeforeRetry(ctx, attempt); err != nil {
			return Result{}, err
		}
	}
}

// waitBeforeRetry spreads concurrent losers apart with jittered backoff.
func (c *Controller) waitBeforeRetry(ctx context.Context, attempt int) error {
	t := time.NewTimer(db.Backoff(attempt-1, c.retryBackoff))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait before admission retry")
	case <-t.C:
		return nil
	}
}

func validate(req Request) *Rejection {
	switch {
	case req.CustomerID == "":
		return reject(KindValidation, reasonMissingField, "customer id")
	case req.ServiceID == "":
		return reject(KindValidation, reasonMissingField, "service id")
	case req.Start.IsZero():
		return reject(KindValidation, reasonMissingField, "start time")
	case req.PartySize < 0:
		return reject(KindValidation, reasonNegativePartySize)
	}
	return nil
}

// admit evaluates the transactional gates in order and inserts the booking.
func (c *Controller) admit(ctx context.Context, tx Tx, req Request) (model.Booking, error) {
	svc, err := tx.LoadService(ctx, req.ServiceID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return model.Booking{}, reject(KindNotFound, ReasonServiceNotFound)
		}
		return model.Booking{}, errors.Wrap(err, "load service")
	}
	if !svc.IsActive {
		return model.Booking{}, reject(KindNotFound, ReasonServiceInactive)
	}
	if svc.DurationMinutes <= 0 {
		return model.Booking{}, reject(KindValidation, reasonInvalidDuration)
	}

	now := c.clock.Now()
	loc := svc.Business.Location()
	iv := model.Interval{Start: req.Start, End: req.Start.Add(svc.Duration())}

	if !iv.Start.After(now) {
		return model.Booking{}, reject(KindValidation, ReasonStartInPast)
	}
	if days := svc.AdvanceBookingDays; days > 0 && iv.Start.After(now.AddDate(0, 0, days)) {
		return model.Booking{}, reject(KindAdmission, reasonAdvanceWindow, days)
	}

	day := availability.DayStart(iv.Start.In(loc), loc)
	dayWindow := model.Interval{Start: day, End: day.AddDate(0, 0, 1)}

	if err := c.checkLimits(ctx, tx, svc, req.CustomerID, dayWindow); err != nil {
		return model.Booking{}, err
	}
	if err := c.checkCooldown(ctx, tx, svc, req.CustomerID, iv.Start, loc); err != nil {
		return model.Booking{}, err
	}
	if !svc.AllowMultipleActiveBookings {
		active, err := tx.HasActiveCustomerServiceBooking(ctx, req.CustomerID, svc.ID)
		if err != nil {
			return model.Booking{}, errors.Wrap(err, "check active bookings")
		}
		if active {
			return model.Booking{}, reject(KindAdmission, ReasonMultipleActive)
		}
	}

	decision, err := c.availability.Check(ctx, tx, svc, iv, req.ResourceID, req.PartySize)
	if err != nil {
		return model.Booking{}, errors.Wrap(err, "check slot")
	}
	if !decision.Available {
		return model.Booking{}, slotRejection(decision)
	}

	status := model.StatusPending
	if svc.Business.AutoAcceptBookings {
		status = model.StatusConfirmed
	}
	b := model.Booking{
		ID:         c.newID(),
		CustomerID: req.CustomerID,
		BusinessID: svc.BusinessID,
		ServiceID:  svc.ID,
		ResourceID: decision.ResourceID,
		Start:      iv.Start.UTC(),
		End:        iv.End.UTC(),
		Status:     status,
		CreatedAt:  now.UTC(),
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (c *Controller) checkLimits(ctx context.Context, tx Tx, svc model.Service, customerID string, dayWindow model.Interval) error {
	perDay := svc.MaxBookingsPerCustomerPerDay
	if perDay < 1 {
		perDay = model.DefaultMaxBookingsPerCustomerPerDay
	}
	sameDay, err := tx.CustomerServiceBookings(ctx, customerID, svc.ID, dayWindow)
	if err != nil {
		return errors.Wrap(err, "count daily bookings")
	}
	if len(sameDay) >= perDay {
		return reject(KindAdmission, reasonDailyLimit, perDay)
	}

	if limit := svc.Business.MaxBookingsPerUserPerDay; limit > 0 {
		n, err := tx.CountCustomerBusinessBookings(ctx, customerID, svc.BusinessID, dayWindow)
		if err != nil {
			return errors.Wrap(err, "count business bookings")
		}
		if n >= limit {
			return reject(KindAdmission, reasonBusinessDailyCap, limit)
		}
	}

	if weekly := svc.MaxBookingsPerCustomerPerWeek; weekly != nil {
		week := model.Interval{Start: dayWindow.Start.AddDate(0, 0, -6), End: dayWindow.End}
		inWeek, err := tx.CustomerServiceBookings(ctx, customerID, svc.ID, week)
		if err != nil {
			return errors.Wrap(err, "count weekly bookings")
		}
		if len(inWeek) >= *weekly {
			return reject(KindAdmission, reasonWeeklyLimit, *weekly)
		}
	}
	return nil
}

// checkCooldown rejects a start closer than the cooldown to any existing
// booking of the service, before or after it.
func (c *Controller) checkCooldown(ctx context.Context, tx Tx, svc model.Service, customerID string, start time.Time, loc *time.Location) error {
	if svc.BookingCooldownHours <= 0 {
		return nil
	}
	cooldown := time.Duration(svc.BookingCooldownHours) * time.Hour
	near, err := tx.CustomerServiceBookings(ctx, customerID, svc.ID, model.Interval{Start: start.Add(-cooldown), End: start.Add(cooldown)})
	if err != nil {
		return errors.Wrap(err, "load bookings near requested time")
	}
	var nextAllowed time.Time
	for _, b := range near {
		gap := b.Start.Sub(start)
		if gap < 0 {
			gap = -gap
		}
		if gap >= cooldown {
			continue
		}
		if until := b.Start.Add(cooldown); until.After(nextAllowed) {
			nextAllowed = until
		}
	}
	if nextAllowed.IsZero() {
		return nil
	}
	return reject(KindAdmission, reasonCooldown, nextAllowed.In(loc).Format("Mon Jan 2 15:04 MST"))
}

func slotRejection(d availability.Decision) *Rejection {
	switch d.Refusal {
	case availability.RefusalUnknownResource:
		return reject(KindNotFound, "%s", d.Reason)
	case availability.RefusalOutsideHours, availability.RefusalResourceRequired, availability.RefusalPartyTooLarge:
		return reject(KindValidation, "%s", d.Reason)
	default:
		return reject(KindConflict, ReasonSlotTaken)
	}
}
