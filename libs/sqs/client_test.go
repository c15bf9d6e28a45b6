package sqs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client, err := New(Config{
		QueueURL:          srv.URL + "/123456789012/bulkflow-jobs",
		Region:            "us-east-1",
		AccessKeyID:       "AKIDEXAMPLE",
		SecretAccessKey:   "secret",
		VisibilityTimeout: 30,
		HTTPClient:        srv.Client(),
	})
	if err != nil {
		srv.Close()
		t.Fatalf("New failed: %v", err)
	}
	return client, srv
}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return form
}

func TestSend(t *testing.T) {
	var gotForm url.Values
	var gotAuth string
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotForm = readForm(t, r)
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`<SendMessageResponse><SendMessageResult><MessageId>mid-42</MessageId></SendMessageResult></SendMessageResponse>`))
	})
	defer srv.Close()

	id, err := client.Send(context.Background(), `{"kind":"REMINDER","bookingId":"b-1","chatId":"c-1"}`)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if id != "mid-42" {
		t.Fatalf("unexpected message id: %s", id)
	}
	if gotForm.Get("Action") != "SendMessage" || gotForm.Get("Version") != "2012-11-05" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if gotForm.Get("MessageBody") == "" {
		t.Fatal("MessageBody missing")
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/") {
		t.Fatalf("request not signed: %q", gotAuth)
	}
}

func TestReceive_ClampsAndParses(t *testing.T) {
	var gotForm url.Values
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotForm = readForm(t, r)
		_, _ = w.Write([]byte(`<ReceiveMessageResponse><ReceiveMessageResult>` +
			`<Message><MessageId>m1</MessageId><ReceiptHandle>r1</ReceiptHandle><Body>b1</Body></Message>` +
			`</ReceiveMessageResult></ReceiveMessageResponse>`))
	})
	defer srv.Close()

	msgs, err := client.Receive(context.Background(), 50, 99)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReceiptHandle != "r1" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if gotForm.Get("MaxNumberOfMessages") != "10" {
		t.Fatalf("max not clamped to 10: %s", gotForm.Get("MaxNumberOfMessages"))
	}
	if gotForm.Get("WaitTimeSeconds") != "20" {
		t.Fatalf("wait not clamped to 20: %s", gotForm.Get("WaitTimeSeconds"))
	}
	if gotForm.Get("VisibilityTimeout") != "30" {
		t.Fatalf("visibility timeout missing: %v", gotForm)
	}
}

func TestDelete(t *testing.T) {
	var gotForm url.Values
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotForm = readForm(t, r)
		_, _ = w.Write([]byte(`<DeleteMessageResponse/>`))
	})
	defer srv.Close()

	if err := client.Delete(context.Background(), "rh-current"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotForm.Get("Action") != "DeleteMessage" || gotForm.Get("ReceiptHandle") != "rh-current" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
}

func TestNon2xxSurfacesTransportError(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "AccessDenied", http.StatusForbidden)
	})
	defer srv.Close()

	_, err := client.Send(context.Background(), "payload")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.StatusCode != http.StatusForbidden || !strings.Contains(terr.Body, "AccessDenied") {
		t.Fatalf("unexpected transport error: %+v", terr)
	}
	if terr.Action != "SendMessage" {
		t.Fatalf("unexpected action: %s", terr.Action)
	}
}

func TestNew_RequiresQueueURL(t *testing.T) {
	if _, err := New(Config{Region: "us-east-1", AccessKeyID: "k", SecretAccessKey: "s"}); err == nil {
		t.Fatal("expected error for missing queue url")
	}
}
