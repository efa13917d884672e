// Package trust scores a customer's reliability from their booking history.
package trust

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

const (
	Baseline = 100

	completionPoints   = 2
	completionCap      = 20
	onTimeCap          = 10
	noShowPenalty      = 15
	lateCancelPenalty  = 10
	earlyCancelPenalty = 5
	recentPenalty      = 5
	recentAllowance    = 3
	suspiciousPenalty  = 20

	onTimeTolerance  = 15 * time.Minute
	lateCancelLead   = 24 * time.Hour
	recentWindow     = 30 * 24 * time.Hour
	suspiciousWithin = time.Hour
	minScore         = 0
	maxScore         = 100
	blockedBelow     = 20
	advisoryBelow    = 40
	excellentFrom    = 80
	goodFrom         = 60
)

type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
	LevelVeryPoor  Level = "very_poor"
)

const (
	ReasonLow     = "Your trust score is low. Bookings may require approval."
	ReasonBlocked = "Your trust score is too low to make new bookings. Please contact support."
)

type Factors struct {
	CompletedBookings   int `json:"completed_bookings"`
	NoShows             int `json:"no_shows"`
	LateCancellations   int `json:"late_cancellations"`
	EarlyCancellations  int `json:"early_cancellations"`
	OnTimeArrivals      int `json:"on_time_arrivals"`
	RecentCancellations int `json:"recent_cancellations"`
	SuspiciousPatterns  int `json:"suspicious_patterns"`
	TotalBookings       int `json:"total_bookings"`
}

type Breakdown struct {
	Positive int      `json:"positive"`
	Negative int      `json:"negative"`
	Details  []string `json:"details"`
}

type Report struct {
	Score     int       `json:"score"`
	Level     Level     `json:"level"`
	Factors   Factors   `json:"factors"`
	Breakdown Breakdown `json:"breakdown"`
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// FactorsOf derives the scoring factors from a customer's full history.
func FactorsOf(history []model.Booking, now time.Time) Factors {
	f := Factors{TotalBookings: len(history)}
	for _, b := range history {
		switch b.Status {
		case model.StatusCompleted:
			f.CompletedBookings++
			if b.CheckedInAt != nil && absDuration(b.CheckedInAt.Sub(b.Start)) <= onTimeTolerance {
				f.OnTimeArrivals++
			}
		case model.StatusNoShow:
			f.NoShows++
		case model.StatusCancelled:
			if b.CancelledAt == nil {
				continue
			}
			if b.Start.Sub(*b.CancelledAt) < lateCancelLead {
				f.LateCancellations++
			} else {
				f.EarlyCancellations++
			}
			if b.CancelledAt.After(now.Add(-recentWindow)) {
				f.RecentCancellations++
			}
			if !b.CreatedAt.IsZero() {
				if d := b.CancelledAt.Sub(b.CreatedAt); d > 0 && d < suspiciousWithin {
					f.SuspiciousPatterns++
				}
			}
		}
	}
	return f
}

// Compute scores a history as of now. The result depends only on its inputs.
func Compute(history []model.Booking, now time.Time) Report {
	f := FactorsOf(history, now)
	bd := Breakdown{Details: []string{}}

	if f.CompletedBookings > 0 {
		bonus := min(f.CompletedBookings*completionPoints, completionCap)
		bd.Positive += bonus
		bd.Details = append(bd.Details, fmt.Sprintf("+%d from %d completed bookings", bonus, f.CompletedBookings))
	}
	if f.OnTimeArrivals > 0 {
		bonus := min(f.OnTimeArrivals, onTimeCap)
		bd.Positive += bonus
		bd.Details = append(bd.Details, fmt.Sprintf("+%d from on-time arrivals", bonus))
	}
	if f.NoShows > 0 {
		penalty := f.NoShows * noShowPenalty
		bd.Negative += penalty
		bd.Details = append(bd.Details, fmt.Sprintf("-%d from %d no-show(s)", penalty, f.NoShows))
	}
	if f.LateCancellations > 0 {
		penalty := f.LateCancellations * lateCancelPenalty
		bd.Negative += penalty
		bd.Details = append(bd.Details, fmt.Sprintf("-%d from %d late cancellation(s)", penalty, f.LateCancellations))
	}
	if f.EarlyCancellations > 0 {
		penalty := f.EarlyCancellations * earlyCancelPenalty
		bd.Negative += penalty
		bd.Details = append(bd.Details, fmt.Sprintf("-%d from %d early cancellation(s)", penalty, f.EarlyCancellations))
	}
	if extra := f.RecentCancellations - recentAllowance; extra > 0 {
		penalty := extra * recentPenalty
		bd.Negative += penalty
		bd.Details = append(bd.Details, fmt.Sprintf("-%d from %d cancellations in the last 30 days", penalty, f.RecentCancellations))
	}
	if f.SuspiciousPatterns > 0 {
		penalty := f.SuspiciousPatterns * suspiciousPenalty
		bd.Negative += penalty
		bd.Details = append(bd.Details, fmt.Sprintf("-%d from %d booking(s) cancelled within an hour of creation", penalty, f.SuspiciousPatterns))
	}

	score := clamp(Baseline + bd.Positive - bd.Negative)
	return Report{Score: score, Level: LevelFor(score), Factors: f, Breakdown: bd}
}

func LevelFor(score int) Level {
	switch {
	case score >= excellentFrom:
		return LevelExcellent
	case score >= goodFrom:
		return LevelGood
	case score >= advisoryBelow:
		return LevelFair
	case score >= blockedBelow:
		return LevelPoor
	default:
		return LevelVeryPoor
	}
}

// CanMakeBooking is the admission predicate. Scores from 20 to 39 are
// allowed with an advisory reason.
func CanMakeBooking(score int) Decision {
	switch {
	case score >= advisoryBelow:
		return Decision{Allowed: true}
	case score >= blockedBelow:
		return Decision{Allowed: true, Reason: ReasonLow}
	default:
		return Decision{Allowed: false, Reason: ReasonBlocked}
	}
}

func clamp(v int) int {
	return max(minScore, min(maxScore, v))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
