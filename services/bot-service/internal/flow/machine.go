// Package flow drives the chat reservation conversation. Every inbound
// event is handled statelessly: the machine reads the stored snapshot,
// applies one transition, writes the new snapshot and emits exactly one
// outbound prompt or side effect. Selections are recorded as-is; ids that
// reference vanished slots or services surface at the next lookup or at the
// reservation engine.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/model"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/reservation"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/session"
)

type Catalog interface {
	ListActiveServices(ctx context.Context) ([]model.Service, error)
	ListAvailableDates(ctx context.Context, serviceID string, now time.Time, limit int) ([]string, error)
	ListOpenSlots(ctx context.Context, serviceID string, dayStart, dayEnd time.Time) ([]model.Slot, error)
	ListConfirmedBookings(ctx context.Context, chatID string) ([]model.BookingSummary, error)
}

type SessionStore interface {
	Get(ctx context.Context, chatID string) (session.Snapshot, bool, error)
	Set(ctx context.Context, chatID string, snap session.Snapshot) error
	Clear(ctx context.Context, chatID string) error
}

type Confirmer interface {
	Confirm(ctx context.Context, serviceID, slotID, chatID string) (reservation.Booking, error)
}

type Machine struct {
	catalog   Catalog
	sessions  SessionStore
	engine    Confirmer
	sender    telegram.Sender
	logger    *slog.Logger
	now       func() time.Time
	dateLimit int
}

func NewMachine(catalog Catalog, sessions SessionStore, engine Confirmer, sender telegram.Sender, logger *slog.Logger) *Machine {
	return &Machine{
		catalog:   catalog,
		sessions:  sessions,
		engine:    engine,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
		dateLimit: 5,
	}
}

// Handle applies one inbound event for the given chat. Storage errors are
// returned so the caller can let the sender retry the webhook; notifier
// errors are logged and swallowed.
func (m *Machine) Handle(ctx context.Context, chatID string, ev Event) error {
	switch ev.Kind {
	case EventStart:
		m.notify(ctx, chatID, "Welcome to BulkFlow Booking Bot! Use /book to start.", nil)
		return nil
	case EventBook:
		return m.startFlow(ctx, chatID)
	case EventMyBookings:
		return m.listBookings(ctx, chatID)
	case EventServiceSelected:
		return m.chooseService(ctx, chatID, ev.Args[0])
	case EventDateSelected:
		return m.chooseDate(ctx, chatID, ev.Args[0])
	case EventSlotSelected:
		return m.chooseSlot(ctx, chatID, ev.Args[0])
	case EventConfirm:
		return m.confirm(ctx, chatID, ev.Args[0], ev.Args[1])
	case EventCancel:
		if err := m.sessions.Clear(ctx, chatID); err != nil {
			return err
		}
		m.notify(ctx, chatID, "Cancelled. Use /book to start again.", nil)
		return nil
	default:
		// Unrecognized events never change state.
		m.notify(ctx, chatID, "Unknown command. Try /book", nil)
		return nil
	}
}

func (m *Machine) startFlow(ctx context.Context, chatID string) error {
	if err := m.sessions.Set(ctx, chatID, session.Snapshot{State: session.StateChooseService}); err != nil {
		return err
	}
	services, err := m.catalog.ListActiveServices(ctx)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		m.notify(ctx, chatID, "No services available right now.", nil)
		return nil
	}
	kb := &telegram.Keyboard{}
	for _, s := range services {
		kb.Rows = append(kb.Rows, []telegram.Button{{Text: s.Name, Data: "svc:" + s.ID}})
	}
	m.notify(ctx, chatID, "Choose a service:", kb)
	return nil
}

func (m *Machine) chooseService(ctx context.Context, chatID, serviceID string) error {
	snap := session.Snapshot{
		State: session.StateChooseDate,
		Ctx:   session.Context{ServiceID: serviceID},
	}
	if err := m.sessions.Set(ctx, chatID, snap); err != nil {
		return err
	}
	dates, err := m.catalog.ListAvailableDates(ctx, serviceID, m.now(), m.dateLimit)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		m.notify(ctx, chatID, "No dates; try later.", nil)
		return nil
	}
	kb := &telegram.Keyboard{}
	for _, d := range dates {
		kb.Rows = append(kb.Rows, []telegram.Button{{Text: d, Data: "date:" + d}})
	}
	m.notify(ctx, chatID, "Pick a date:", kb)
	return nil
}

func (m *Machine) chooseDate(ctx context.Context, chatID, date string) error {
	day, err := time.ParseInLocation(model.WireDate, date, time.UTC)
	if err != nil {
		// Malformed event: report, leave state untouched.
		m.notify(ctx, chatID, "That date doesn't look right. Pick one from the list.", nil)
		return nil
	}

	snap, _, err := m.sessions.Get(ctx, chatID)
	if err != nil {
		return err
	}
	snap.State = session.StateChooseSlot
	snap.Ctx.Date = date
	if err := m.sessions.Set(ctx, chatID, snap); err != nil {
		return err
	}

	slots, err := m.catalog.ListOpenSlots(ctx, snap.Ctx.ServiceID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		m.notify(ctx, chatID, "No slots for that date.", nil)
		return nil
	}
	kb := &telegram.Keyboard{}
	for _, s := range slots {
		kb.Rows = append(kb.Rows, []telegram.Button{{Text: s.Start.UTC().Format("15:04"), Data: "slot:" + s.ID}})
	}
	m.notify(ctx, chatID, "Pick a time:", kb)
	return nil
}

func (m *Machine) chooseSlot(ctx context.Context, chatID, slotID string) error {
	snap, _, err := m.sessions.Get(ctx, chatID)
	if err != nil {
		return err
	}
	snap.State = session.StateConfirm
	snap.Ctx.SlotID = slotID
	if err := m.sessions.Set(ctx, chatID, snap); err != nil {
		return err
	}
	kb := &telegram.Keyboard{Rows: [][]telegram.Button{
		{{Text: "Confirm", Data: "confirm:" + snap.Ctx.ServiceID + ":" + slotID}},
		{{Text: "Cancel", Data: "abort"}},
	}}
	m.notify(ctx, chatID, "Confirm your booking?", kb)
	return nil
}

func (m *Machine) confirm(ctx context.Context, chatID, serviceID, slotID string) error {
	_, err := m.engine.Confirm(ctx, serviceID, slotID, chatID)
	switch {
	case err == nil:
		// The engine already cleared the session in the same transaction.
		m.notify(ctx, chatID, "Booked! We'll remind you before it starts.", nil)
		return nil
	case errors.Is(err, reservation.ErrSlotNotFound):
		m.notify(ctx, chatID, "Slot not found.", nil)
		return nil
	case errors.Is(err, reservation.ErrSlotFull):
		m.notify(ctx, chatID, "Sorry, slot already full.", nil)
		return nil
	default:
		return err
	}
}

func (m *Machine) listBookings(ctx context.Context, chatID string) error {
	bookings, err := m.catalog.ListConfirmedBookings(ctx, chatID)
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		m.notify(ctx, chatID, "You have no active bookings.", nil)
		return nil
	}
	var lines []string
	for _, b := range bookings {
		lines = append(lines, fmt.Sprintf("- %s at %s (id: %s)", b.ServiceName, b.Start.UTC().Format(model.WireTime), b.ID))
	}
	m.notify(ctx, chatID, strings.Join(lines, "\n"), nil)
	return nil
}

func (m *Machine) notify(ctx context.Context, chatID, text string, kb *telegram.Keyboard) {
	if err := m.sender.Send(ctx, chatID, text, kb); err != nil {
		m.logger.Warn("notify failed", "err", err, "chat_id", chatID)
	}
}
