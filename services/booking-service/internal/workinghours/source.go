package workinghours

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// Day is one weekday entry of a weekly schedule.
type Day struct {
	IsOpen    bool   `json:"isOpen"`
	OpenTime  string `json:"openTime,omitempty"`
	CloseTime string `json:"closeTime,omitempty"`
}

// Schedule maps a lower-case English weekday name to its hours.
type Schedule map[string]Day

var weekdays = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DefaultSchedule is substituted when no working hours are configured:
// Monday to Friday 09:00-17:00, weekend closed.
func DefaultSchedule() Schedule {
	s := make(Schedule, len(weekdays))
	for _, d := range weekdays {
		if d == "saturday" || d == "sunday" {
			s[d] = Day{IsOpen: false}
			continue
		}
		s[d] = Day{IsOpen: true, OpenTime: "09:00", CloseTime: "17:00"}
	}
	return s
}

type kind uint8

const (
	kindAbsent kind = iota
	kindRaw
	kindStructured
)

// Source is how working hours arrive from storage: a raw JSON document, an
// already decoded schedule, or nothing. The zero value is Absent.
type Source struct {
	kind     kind
	raw      string
	schedule Schedule
}

func Raw(s string) Source {
	if strings.TrimSpace(s) == "" {
		return Absent()
	}
	return Source{kind: kindRaw, raw: s}
}

func Structured(s Schedule) Source {
	if s == nil {
		return Absent()
	}
	return Source{kind: kindStructured, schedule: s}
}

func Absent() Source {
	return Source{}
}

func (s Source) IsAbsent() bool {
	return s.kind == kindAbsent
}

var ErrMalformed = errors.New("malformed working hours")

// Schedule decodes the source. Absent yields (nil, nil); a raw document that
// does not decode yields ErrMalformed. A JSON string holding a JSON document
// (double encoded by some writers) is unwrapped once.
func (s Source) Schedule() (Schedule, error) {
	switch s.kind {
	case kindStructured:
		return s.schedule, nil
	case kindRaw:
		return decodeRaw(s.raw)
	default:
		return nil, nil
	}
}

func decodeRaw(raw string) (Schedule, error) {
	data := []byte(strings.TrimSpace(raw))
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode quoted working hours"), ErrMalformed)
		}
		data = []byte(strings.TrimSpace(inner))
	}
	if string(data) == "null" {
		return nil, nil
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode working hours"), ErrMalformed)
	}
	return sched, nil
}
