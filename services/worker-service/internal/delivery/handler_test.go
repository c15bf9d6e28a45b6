package delivery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/jobs"
)

type fakeStore struct {
	body      string
	found     bool
	bodyErr   error
	upsertErr error
	logErr    error

	statuses map[string]string
	logged   []string
}

func (f *fakeStore) CampaignBody(context.Context, string) (string, bool, error) {
	return f.body, f.found, f.bodyErr
}

func (f *fakeStore) UpsertStatus(_ context.Context, campaignID, recipient, status string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[campaignID+"/"+recipient] = status
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, _, _, status string, _ time.Time) error {
	if f.logErr != nil {
		return f.logErr
	}
	f.logged = append(f.logged, status)
	return nil
}

type stubSender struct {
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, _ string, text string, _ *telegram.Keyboard) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

var deliveryJob = jobs.Envelope{CampaignID: "camp-1", Recipient: "chat-9"}

func TestHandle_Delivered(t *testing.T) {
	store := &fakeStore{body: "Flash sale today", found: true}
	sender := &stubSender{}
	h := NewHandler(store, sender, testLogger())

	outcome, err := h.Handle(context.Background(), deliveryJob)
	if err != nil || outcome != jobs.Ack {
		t.Fatalf("expected Ack, got %v / %v", outcome, err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Flash sale today" {
		t.Fatalf("unexpected sends: %v", sender.sent)
	}
	if got := store.statuses["camp-1/chat-9"]; got != StatusDelivered {
		t.Fatalf("expected DELIVERED, got %q", got)
	}
	if len(store.logged) != 1 || store.logged[0] != StatusDelivered {
		t.Fatalf("unexpected log entries: %v", store.logged)
	}
}

func TestHandle_SendFailureIsTerminal(t *testing.T) {
	store := &fakeStore{body: "hello", found: true}
	h := NewHandler(store, &stubSender{err: errors.New("blocked by user")}, testLogger())

	outcome, err := h.Handle(context.Background(), deliveryJob)
	if err != nil || outcome != jobs.Ack {
		t.Fatalf("send failure must ack, got %v / %v", outcome, err)
	}
	if got := store.statuses["camp-1/chat-9"]; got != StatusFailed {
		t.Fatalf("expected FAILED, got %q", got)
	}
}

func TestHandle_DuplicateRunSettlesOnce(t *testing.T) {
	store := &fakeStore{body: "hello again", found: true}
	h := NewHandler(store, &stubSender{}, testLogger())

	for i := 0; i < 2; i++ {
		outcome, err := h.Handle(context.Background(), deliveryJob)
		if err != nil || outcome != jobs.Ack {
			t.Fatalf("run %d: expected Ack, got %v / %v", i, outcome, err)
		}
	}
	// Upsert keeps one record per key; the log keeps every attempt.
	if len(store.statuses) != 1 {
		t.Fatalf("expected one settled record, got %v", store.statuses)
	}
	if len(store.logged) != 2 {
		t.Fatalf("expected two log rows, got %v", store.logged)
	}
}

func TestHandle_CampaignVanished(t *testing.T) {
	store := &fakeStore{found: false}
	h := NewHandler(store, &stubSender{}, testLogger())

	outcome, err := h.Handle(context.Background(), deliveryJob)
	if err != nil || outcome != jobs.Ack {
		t.Fatalf("expected Ack for vanished campaign, got %v / %v", outcome, err)
	}
	if len(store.statuses) != 0 {
		t.Fatalf("must not settle a vanished campaign: %v", store.statuses)
	}
}

func TestHandle_StorageErrorsRetry(t *testing.T) {
	cases := map[string]*fakeStore{
		"body lookup": {bodyErr: errors.New("db down")},
		"upsert":      {body: "x", found: true, upsertErr: errors.New("db down")},
		"log append":  {body: "x", found: true, logErr: errors.New("db down")},
	}
	for name, store := range cases {
		h := NewHandler(store, &stubSender{}, testLogger())
		outcome, err := h.Handle(context.Background(), deliveryJob)
		if err == nil || outcome != jobs.Retry {
			t.Fatalf("%s: expected Retry with error, got %v / %v", name, outcome, err)
		}
	}
}

func TestHandle_MissingIDs(t *testing.T) {
	h := NewHandler(&fakeStore{}, &stubSender{}, testLogger())
	outcome, err := h.Handle(context.Background(), jobs.Envelope{CampaignID: "camp-1"})
	if err != nil || outcome != jobs.Ack {
		t.Fatalf("expected Ack for malformed job, got %v / %v", outcome, err)
	}
}
