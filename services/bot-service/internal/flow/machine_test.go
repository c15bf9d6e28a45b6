package flow

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/model"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/reservation"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/session"
)

type fakeCatalog struct {
	services []model.Service
	dates    []string
	slots    []model.Slot
	bookings []model.BookingSummary

	slotsServiceID string
}

func (f *fakeCatalog) ListActiveServices(context.Context) ([]model.Service, error) {
	return f.services, nil
}

func (f *fakeCatalog) ListAvailableDates(_ context.Context, serviceID string, _ time.Time, _ int) ([]string, error) {
	return f.dates, nil
}

func (f *fakeCatalog) ListOpenSlots(_ context.Context, serviceID string, _, _ time.Time) ([]model.Slot, error) {
	f.slotsServiceID = serviceID
	return f.slots, nil
}

func (f *fakeCatalog) ListConfirmedBookings(context.Context, string) ([]model.BookingSummary, error) {
	return f.bookings, nil
}

type fakeSessions struct {
	snaps map[string]session.Snapshot
	sets  int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{snaps: map[string]session.Snapshot{}}
}

func (f *fakeSessions) Get(_ context.Context, chatID string) (session.Snapshot, bool, error) {
	snap, ok := f.snaps[chatID]
	return snap, ok, nil
}

func (f *fakeSessions) Set(_ context.Context, chatID string, snap session.Snapshot) error {
	f.snaps[chatID] = snap
	f.sets++
	return nil
}

func (f *fakeSessions) Clear(_ context.Context, chatID string) error {
	delete(f.snaps, chatID)
	return nil
}

type fakeConfirmer struct {
	err       error
	clearWith *fakeSessions

	serviceID, slotID, chatID string
	calls                     int
}

func (f *fakeConfirmer) Confirm(_ context.Context, serviceID, slotID, chatID string) (reservation.Booking, error) {
	f.calls++
	f.serviceID, f.slotID, f.chatID = serviceID, slotID, chatID
	if f.err != nil {
		return reservation.Booking{}, f.err
	}
	if f.clearWith != nil {
		delete(f.clearWith.snaps, chatID)
	}
	return reservation.Booking{ID: "b-1", ChatID: chatID, ServiceID: serviceID, SlotID: slotID, Status: "CONFIRMED"}, nil
}

type recordingSender struct {
	texts     []string
	keyboards []*telegram.Keyboard
}

func (r *recordingSender) Send(_ context.Context, _ string, text string, kb *telegram.Keyboard) error {
	r.texts = append(r.texts, text)
	r.keyboards = append(r.keyboards, kb)
	return nil
}

func (r *recordingSender) last() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func newTestMachine(catalog *fakeCatalog, sessions *fakeSessions, confirmer *fakeConfirmer, sender *recordingSender) *Machine {
	m := NewMachine(catalog, sessions, confirmer, sender, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	m.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }
	return m
}

func TestHandle_BookListsServices(t *testing.T) {
	catalog := &fakeCatalog{services: []model.Service{{ID: "s1", Name: "Demo Call", Active: true}}}
	sessions := newFakeSessions()
	sender := &recordingSender{}
	m := newTestMachine(catalog, sessions, &fakeConfirmer{}, sender)

	if err := m.Handle(context.Background(), "c1", Event{Kind: EventBook}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if snap := sessions.snaps["c1"]; snap.State != session.StateChooseService {
		t.Fatalf("expected CHOOSE_SERVICE, got %s", snap.State)
	}
	if sender.last() != "Choose a service:" {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}
	kb := sender.keyboards[len(sender.keyboards)-1]
	if kb == nil || kb.Rows[0][0].Data != "svc:s1" {
		t.Fatalf("unexpected keyboard: %+v", kb)
	}
}

func TestHandle_BookWithNoServices(t *testing.T) {
	sessions := newFakeSessions()
	sender := &recordingSender{}
	m := newTestMachine(&fakeCatalog{}, sessions, &fakeConfirmer{}, sender)

	if err := m.Handle(context.Background(), "c1", Event{Kind: EventBook}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	// Flow stays parked awaiting a selection even though none was offered.
	if snap := sessions.snaps["c1"]; snap.State != session.StateChooseService {
		t.Fatalf("expected CHOOSE_SERVICE, got %s", snap.State)
	}
	if sender.last() != "No services available right now." {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}
}

func TestHandle_FullFlow(t *testing.T) {
	start := time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{
		services: []model.Service{{ID: "s1", Name: "Demo Call", Active: true}},
		dates:    []string{"2026-09-02"},
		slots:    []model.Slot{{ID: "sl1", ServiceID: "s1", Start: start, End: start.Add(30 * time.Minute), Capacity: 1}},
	}
	sessions := newFakeSessions()
	confirmer := &fakeConfirmer{clearWith: sessions}
	sender := &recordingSender{}
	m := newTestMachine(catalog, sessions, confirmer, sender)
	ctx := context.Background()

	steps := []Event{
		{Kind: EventBook},
		{Kind: EventServiceSelected, Args: []string{"s1"}},
		{Kind: EventDateSelected, Args: []string{"2026-09-02"}},
		{Kind: EventSlotSelected, Args: []string{"sl1"}},
	}
	for _, ev := range steps {
		if err := m.Handle(ctx, "c1", ev); err != nil {
			t.Fatalf("Handle(%v) failed: %v", ev.Kind, err)
		}
	}

	snap := sessions.snaps["c1"]
	if snap.State != session.StateConfirm {
		t.Fatalf("expected CONFIRM, got %s", snap.State)
	}
	if snap.Ctx.ServiceID != "s1" || snap.Ctx.Date != "2026-09-02" || snap.Ctx.SlotID != "sl1" {
		t.Fatalf("context not accumulated: %+v", snap.Ctx)
	}
	if sender.last() != "Confirm your booking?" {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}

	if err := m.Handle(ctx, "c1", Event{Kind: EventConfirm, Args: []string{"s1", "sl1"}}); err != nil {
		t.Fatalf("Handle(confirm) failed: %v", err)
	}
	if confirmer.calls != 1 || confirmer.serviceID != "s1" || confirmer.slotID != "sl1" || confirmer.chatID != "c1" {
		t.Fatalf("unexpected confirm call: %+v", confirmer)
	}
	if _, ok := sessions.snaps["c1"]; ok {
		t.Fatal("session should be gone after a successful confirm")
	}
	if sender.last() != "Booked! We'll remind you before it starts." {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}
}

func TestHandle_ConfirmRejections(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"full", reservation.ErrSlotFull, "Sorry, slot already full."},
		{"missing", reservation.ErrSlotNotFound, "Slot not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := newFakeSessions()
			sessions.snaps["c1"] = session.Snapshot{State: session.StateConfirm, Ctx: session.Context{ServiceID: "s1", SlotID: "sl1"}}
			sender := &recordingSender{}
			m := newTestMachine(&fakeCatalog{}, sessions, &fakeConfirmer{err: tc.err}, sender)

			if err := m.Handle(context.Background(), "c1", Event{Kind: EventConfirm, Args: []string{"s1", "sl1"}}); err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if sender.last() != tc.want {
				t.Fatalf("got %q, want %q", sender.last(), tc.want)
			}
			// Rejection leaves the stored snapshot alone.
			if _, ok := sessions.snaps["c1"]; !ok {
				t.Fatal("session vanished on rejection")
			}
		})
	}
}

func TestHandle_CancelClearsSession(t *testing.T) {
	sessions := newFakeSessions()
	sessions.snaps["c1"] = session.Snapshot{State: session.StateChooseSlot}
	sender := &recordingSender{}
	m := newTestMachine(&fakeCatalog{}, sessions, &fakeConfirmer{}, sender)

	if err := m.Handle(context.Background(), "c1", Event{Kind: EventCancel}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, ok := sessions.snaps["c1"]; ok {
		t.Fatal("session not cleared")
	}
	if sender.last() != "Cancelled. Use /book to start again." {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}
}

func TestHandle_UnknownLeavesStateUntouched(t *testing.T) {
	sessions := newFakeSessions()
	sessions.snaps["c1"] = session.Snapshot{State: session.StateChooseDate, Ctx: session.Context{ServiceID: "s1"}}
	sender := &recordingSender{}
	m := newTestMachine(&fakeCatalog{}, sessions, &fakeConfirmer{}, sender)

	before := sessions.snaps["c1"]
	if err := m.Handle(context.Background(), "c1", Event{Kind: EventUnknown}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if sessions.snaps["c1"] != before {
		t.Fatal("unknown event changed state")
	}
	if sender.last() != "Unknown command. Try /book" {
		t.Fatalf("unexpected prompt: %s", sender.last())
	}
}

func TestHandle_MalformedDate(t *testing.T) {
	sessions := newFakeSessions()
	sessions.snaps["c1"] = session.Snapshot{State: session.StateChooseDate, Ctx: session.Context{ServiceID: "s1"}}
	sender := &recordingSender{}
	m := newTestMachine(&fakeCatalog{}, sessions, &fakeConfirmer{}, sender)

	before := sessions.snaps["c1"]
	if err := m.Handle(context.Background(), "c1", Event{Kind: EventDateSelected, Args: []string{"not-a-date"}}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if sessions.snaps["c1"] != before {
		t.Fatal("malformed date changed state")
	}
}

func TestParseCommand(t *testing.T) {
	cases := map[string]EventKind{
		"/start":      EventStart,
		"/book":       EventBook,
		"/mybookings": EventMyBookings,
		"/frobnicate": EventUnknown,
		"hello":       EventUnknown,
	}
	for text, want := range cases {
		if got := ParseCommand(text).Kind; got != want {
			t.Fatalf("ParseCommand(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data string
		want EventKind
		args int
	}{
		{"svc:s1", EventServiceSelected, 1},
		{"date:2026-09-02", EventDateSelected, 1},
		{"slot:sl1", EventSlotSelected, 1},
		{"confirm:s1:sl1", EventConfirm, 2},
		{"abort", EventCancel, 0},
		{"svc:", EventUnknown, 0},
		{"confirm:s1", EventUnknown, 0},
		{"bogus:x", EventUnknown, 0},
		{"", EventUnknown, 0},
	}
	for _, tc := range cases {
		ev := ParseCallback(tc.data)
		if ev.Kind != tc.want || len(ev.Args) != tc.args {
			t.Fatalf("ParseCallback(%q) = %+v, want kind %v with %d args", tc.data, ev, tc.want, tc.args)
		}
	}
}
