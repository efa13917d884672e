package model

import (
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/workinghours"
)

type ResourceType string

const (
	ResourceStaff     ResourceType = "staff"
	ResourceTable     ResourceType = "table"
	ResourceEquipment ResourceType = "equipment"
	ResourceRoom      ResourceType = "room"
)

func ParseResourceType(s string) (ResourceType, bool) {
	switch rt := ResourceType(s); rt {
	case ResourceStaff, ResourceTable, ResourceEquipment, ResourceRoom:
		return rt, true
	default:
		return "", false
	}
}

type Business struct {
	ID                 string
	Name               string
	Timezone           string
	WorkingHours       workinghours.Source
	AutoAcceptBookings bool
	// MaxBookingsPerUserPerDay caps one customer's bookings across the whole
	// business per local day. Zero disables the cap.
	MaxBookingsPerUserPerDay int
}

// Location resolves the business timezone, defaulting to UTC.
func (b Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Resource struct {
	ID           string
	BusinessID   string
	Name         string
	Type         ResourceType
	Capacity     *int
	WorkingHours workinghours.Source
	IsActive     bool
	SortOrder    int
}

// Fits reports whether a party can be seated. Only tables with a known
// capacity constrain party size.
func (r Resource) Fits(partySize int) bool {
	if r.Type != ResourceTable || partySize <= 0 || r.Capacity == nil {
		return true
	}
	return partySize <= *r.Capacity
}

type Service struct {
	ID                            string
	BusinessID                    string
	Name                          string
	DurationMinutes               int
	MaxBookingsPerSlot            int
	AdvanceBookingDays            int
	CancellationHours             int
	MaxBookingsPerCustomerPerDay  int
	MaxBookingsPerCustomerPerWeek *int
	BookingCooldownHours          int
	AllowMultipleActiveBookings   bool
	ResourceType                  ResourceType
	AllowAnyResource              bool
	RequireResourceSelection      bool
	IsActive                      bool

	Business  Business
	Resources []Resource
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// UsesResources selects resource mode. Services without a resource type, or
// with no resources that do not insist on a selection, count capacity instead.
func (s Service) UsesResources() bool {
	if s.ResourceType == "" {
		return false
	}
	if len(s.Resources) == 0 && !s.RequireResourceSelection {
		return false
	}
	return true
}

func (s Service) Resource(id string) (Resource, bool) {
	for _, r := range s.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// Defaults applied when a stored service leaves a policy column unset.
const (
	DefaultMaxBookingsPerSlot           = 1
	DefaultMaxBookingsPerCustomerPerDay = 1
)
