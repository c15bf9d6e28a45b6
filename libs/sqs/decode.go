package sqs

import "strings"

// Message is one delivery of a queued job. ReceiptHandle is only valid for
// this delivery; the provider rotates it on redelivery.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

// DecodeMessages extracts the repeated <Message> blocks from a
// ReceiveMessage response body. Fields are picked by tag name rather than
// position, so the provider is free to reorder them within a block. Blocks
// missing an id or receipt handle are dropped.
func DecodeMessages(body string) []Message {
	var out []Message
	parts := strings.Split(body, "<Message>")
	for _, part := range parts[1:] {
		if end := strings.Index(part, "</Message>"); end >= 0 {
			part = part[:end]
		}
		m := Message{
			MessageID:     pickTag(part, "MessageId"),
			ReceiptHandle: pickTag(part, "ReceiptHandle"),
			Body:          UnescapeEntities(pickTag(part, "Body")),
		}
		if m.MessageID == "" || m.ReceiptHandle == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func pickTag(s, tag string) string {
	open := "<" + tag + ">"
	a := strings.Index(s, open)
	if a < 0 {
		return ""
	}
	a += len(open)
	b := strings.Index(s[a:], "</"+tag+">")
	if b < 0 {
		return ""
	}
	return s[a : a+b]
}

var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&apos;", "'",
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

// UnescapeEntities undoes the XML entity escaping the provider applies to
// message bodies.
func UnescapeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityReplacer.Replace(s)
}
