package dashboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
)

// EventKind names a filter control.
type EventKind string

const (
	EventDateRange      EventKind = "date-range"
	EventRegion         EventKind = "region"
	EventProfitRatioMin EventKind = "profit-ratio-min"
	EventProfitRatioMax EventKind = "profit-ratio-max"
	EventReset          EventKind = "reset"
)

// Event is one change emitted by a filter control.
type Event struct {
	Kind  EventKind `json:"type"`
	Value string    `json:"value"`
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Reduce applies ev to state and returns the new filter state. Reset
// returns defaults. state is never modified.
func Reduce(state models.FilterState, ev Event, defaults models.FilterState) (models.FilterState, error) {
	value := strings.TrimSpace(ev.Value)

	switch ev.Kind {
	case EventDateRange:
		if value != models.DateRangeAll && value != models.DateRangeLast3Years && !yearPattern.MatchString(value) {
			return state, apperrors.Validation(fmt.Sprintf("invalid date range %q", ev.Value))
		}
		state.DateRange = value

	case EventRegion:
		if value == "" {
			return state, apperrors.Validation("region cannot be empty")
		}
		state.Region = value

	case EventProfitRatioMin, EventProfitRatioMax:
		bound, err := strconv.Atoi(value)
		if err != nil {
			return state, apperrors.ValidationWrap(err, fmt.Sprintf("profit ratio bound must be an integer, got %q", ev.Value))
		}
		if ev.Kind == EventProfitRatioMin {
			state.ProfitRatioMin = bound
		} else {
			state.ProfitRatioMax = bound
		}

	case EventReset:
		return defaults, nil

	default:
		return state, apperrors.Validation(fmt.Sprintf("unknown event type %q", ev.Kind))
	}

	return state, nil
}

// Diff returns the events that turn from into to, in control order. It is
// how a whole submitted filter form becomes individual control events.
func Diff(from, to models.FilterState) []Event {
	var events []Event
	if to.DateRange != from.DateRange {
		events = append(events, Event{Kind: EventDateRange, Value: to.DateRange})
	}
	if to.Region != from.Region {
		events = append(events, Event{Kind: EventRegion, Value: to.Region})
	}
	if to.ProfitRatioMin != from.ProfitRatioMin {
		events = append(events, Event{Kind: EventProfitRatioMin, Value: strconv.Itoa(to.ProfitRatioMin)})
	}
	if to.ProfitRatioMax != from.ProfitRatioMax {
		events = append(events, Event{Kind: EventProfitRatioMax, Value: strconv.Itoa(to.ProfitRatioMax)})
	}
	return events
}
