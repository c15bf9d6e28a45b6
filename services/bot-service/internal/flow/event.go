package flow

import "strings"

type EventKind int

const (
	EventUnknown EventKind = iota
	EventStart
	EventBook
	EventMyBookings
	EventCancel
	EventServiceSelected
	EventDateSelected
	EventSlotSelected
	EventConfirm
)

// Event is one inbound conversation step: a command the user typed or a
// callback token from an inline keyboard (kind:arg1[:arg2...]).
type Event struct {
	Kind EventKind
	Args []string
}

func ParseCommand(text string) Event {
	switch strings.TrimSpace(text) {
	case "/start":
		return Event{Kind: EventStart}
	case "/book":
		return Event{Kind: EventBook}
	case "/mybookings":
		return Event{Kind: EventMyBookings}
	default:
		return Event{Kind: EventUnknown}
	}
}

func ParseCallback(data string) Event {
	parts := strings.Split(data, ":")
	switch parts[0] {
	case "svc":
		if len(parts) == 2 && parts[1] != "" {
			return Event{Kind: EventServiceSelected, Args: parts[1:]}
		}
	case "date":
		if len(parts) == 2 && parts[1] != "" {
			return Event{Kind: EventDateSelected, Args: parts[1:]}
		}
	case "slot":
		if len(parts) == 2 && parts[1] != "" {
			return Event{Kind: EventSlotSelected, Args: parts[1:]}
		}
	case "confirm":
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return Event{Kind: EventConfirm, Args: parts[1:]}
		}
	case "abort":
		if len(parts) == 1 {
			return Event{Kind: EventCancel}
		}
	}
	return Event{Kind: EventUnknown}
}
