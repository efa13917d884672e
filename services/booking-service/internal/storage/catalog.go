package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/errs"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
)

type catalogQueries struct {
	q querier
}

// LoadService reads a service with its business and eligible resources.
func (c catalogQueries) LoadService(ctx context.Context, serviceID string) (model.Service, error) {
	var (
		svc          model.Service
		resourceType string
		hours        *string
	)
	err := c.q.QueryRow(ctx, `
		SELECT s.id::text, s.business_id::text, s.name, s.duration_minutes, s.max_bookings_per_slot,
			s.advance_booking_days, s.cancellation_hours, s.max_bookings_per_customer_per_day,
			s.max_bookings_per_customer_per_week, s.booking_cooldown_hours,
			s.allow_multiple_active_bookings, COALESCE(s.resource_type, ''), s.allow_any_resource,
			s.require_resource_selection, s.is_active,
			b.id::text, b.name, b.timezone, b.working_hours::text, b.auto_accept_bookings,
			b.max_bookings_per_user_per_day
		FROM services s
		JOIN businesses b ON b.id = s.business_id
		WHERE s.id = $1
	`, serviceID).Scan(
		&svc.ID,
		&svc.BusinessID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.MaxBookingsPerSlot,
		&svc.AdvanceBookingDays,
		&svc.CancellationHours,
		&svc.MaxBookingsPerCustomerPerDay,
		&svc.MaxBookingsPerCustomerPerWeek,
		&svc.BookingCooldownHours,
		&svc.AllowMultipleActiveBookings,
		&resourceType,
		&svc.AllowAnyResource,
		&svc.RequireResourceSelection,
		&svc.IsActive,
		&svc.Business.ID,
		&svc.Business.Name,
		&svc.Business.Timezone,
		&hours,
		&svc.Business.AutoAcceptBookings,
		&svc.Business.MaxBookingsPerUserPerDay,
	)
	if err != nil {
		return model.Service{}, errors.Wrapf(classify(err), "load service %s", serviceID)
	}
	if svc.ResourceType, err = serviceResourceType(svc.ID, resourceType); err != nil {
		return model.Service{}, err
	}
	svc.Business.WorkingHours = hoursSource(hours)

	resources, err := c.serviceResources(ctx, svc.ID)
	if err != nil {
		return model.Service{}, err
	}
	svc.Resources = resources
	return svc, nil
}

func (c catalogQueries) serviceResources(ctx context.Context, serviceID string) ([]model.Resource, error) {
	rows, err := c.q.Query(ctx, `
		SELECT r.id::text, r.business_id::text, r.name, r.type, r.capacity, r.working_hours::text,
			r.is_active, r.sort_order
		FROM service_resources sr
		JOIN resources r ON r.id = sr.resource_id
		WHERE sr.service_id = $1
		ORDER BY r.sort_order, r.id
	`, serviceID)
	if err != nil {
		return nil, errors.Wrap(classify(err), "query service resources")
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var (
			r     model.Resource
			typ   string
			hours *string
		)
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.Name, &typ, &r.Capacity, &hours, &r.IsActive, &r.SortOrder); err != nil {
			return nil, errors.Wrap(err, "scan resource")
		}
		rt, ok := model.ParseResourceType(typ)
		if !ok {
			return nil, errs.Public(errs.ErrInvalid, "resource %s has unknown type %q", r.ID, typ)
		}
		r.Type = rt
		r.WorkingHours = hoursSource(hours)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterate resources")
	}
	return out, nil
}

// serviceResourceType accepts an empty column as capacity mode.
func serviceResourceType(serviceID, raw string) (model.ResourceType, error) {
	if raw == "" {
		return "", nil
	}
	rt, ok := model.ParseResourceType(raw)
	if !ok {
		return "", errs.Public(errs.ErrInvalid, "service %s has unknown resource type %q", serviceID, raw)
	}
	return rt, nil
}

// hoursSource wraps a jsonb column read as text. SQL NULL means not
// configured.
func hoursSource(raw *string) workinghours.Source {
	if raw == nil {
		return workinghours.Absent()
	}
	return workinghours.Raw(*raw)
}
