// Package jobs defines the queue job envelope and the defensive
// normalization applied to message bodies before dispatch. Producers vary:
// some double-encode the JSON, some bodies arrive entity-escaped or
// percent-encoded from relays. Normalization undoes one layer of each; a
// body that still fails to parse is poison.
package jobs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/bulkflow/libs/sqs"
)

type Kind string

const KindReminder Kind = "REMINDER"

// Envelope is the union of all job payload shapes: reminder jobs carry
// kind/bookingId/chatId, campaign jobs carry campaignId/recipient.
type Envelope struct {
	Kind        Kind   `json:"kind,omitempty"`
	BookingID   string `json:"bookingId,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	CampaignID  string `json:"campaignId,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Traceparent string `json:"traceparent,omitempty"`
	Tracestate  string `json:"tracestate,omitempty"`
}

// Outcome is the acknowledgment decision for one processed job.
type Outcome int

const (
	// Ack deletes the job: it succeeded, is no longer applicable, or can
	// never succeed.
	Ack Outcome = iota
	// Retry leaves the job for the provider's visibility timeout to
	// redeliver.
	Retry
)

// Decode normalizes raw and unmarshals it. A parse failure marks the job
// as poison: redelivering it cannot help.
func Decode(raw string) (Envelope, error) {
	normalized := Normalize(raw)
	var env Envelope
	if err := json.Unmarshal([]byte(normalized), &env); err != nil {
		return Envelope{}, fmt.Errorf("poison message body: %w", err)
	}
	return env, nil
}

// Normalize strips one layer of JSON string wrapping, undoes XML entity
// escaping, and falls back to percent-decoding when the body still does
// not look like a JSON object.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = unwrapJSONString(s)
	s = sqs.UnescapeEntities(s)
	s = unwrapJSONString(s)
	if !strings.HasPrefix(s, "{") {
		if decoded, err := url.QueryUnescape(s); err == nil && strings.HasPrefix(decoded, "{") {
			return decoded
		}
	}
	return s
}

func unwrapJSONString(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		return s
	}
	return inner
}
