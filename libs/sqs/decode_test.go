package sqs

import "testing"

func TestDecodeMessages_Empty(t *testing.T) {
	body := `<?xml version="1.0"?><ReceiveMessageResponse><ReceiveMessageResult/></ReceiveMessageResponse>`
	if msgs := DecodeMessages(body); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestDecodeMessages_Single(t *testing.T) {
	body := `<ReceiveMessageResponse><ReceiveMessageResult><Message>` +
		`<MessageId>mid-1</MessageId>` +
		`<ReceiptHandle>rh-1</ReceiptHandle>` +
		`<Body>{&quot;kind&quot;:&quot;REMINDER&quot;,&quot;bookingId&quot;:&quot;b-1&quot;}</Body>` +
		`</Message></ReceiveMessageResult></ReceiveMessageResponse>`

	msgs := DecodeMessages(body)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].MessageID != "mid-1" || msgs[0].ReceiptHandle != "rh-1" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
	if msgs[0].Body != `{"kind":"REMINDER","bookingId":"b-1"}` {
		t.Fatalf("body not unescaped: %s", msgs[0].Body)
	}
}

func TestDecodeMessages_ManyAndFieldOrder(t *testing.T) {
	// Second block has its fields in a different order; extraction is by
	// tag name, not position.
	body := `<ReceiveMessageResponse><ReceiveMessageResult>` +
		`<Message><MessageId>m1</MessageId><ReceiptHandle>r1</ReceiptHandle><Body>one</Body></Message>` +
		`<Message><Body>two</Body><ReceiptHandle>r2</ReceiptHandle><MessageId>m2</MessageId></Message>` +
		`<Message><ReceiptHandle>r3</ReceiptHandle><MessageId>m3</MessageId><Body>three</Body></Message>` +
		`</ReceiveMessageResult></ReceiveMessageResponse>`

	msgs := DecodeMessages(body)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []Message{
		{MessageID: "m1", ReceiptHandle: "r1", Body: "one"},
		{MessageID: "m2", ReceiptHandle: "r2", Body: "two"},
		{MessageID: "m3", ReceiptHandle: "r3", Body: "three"},
	} {
		if msgs[i] != want {
			t.Fatalf("message %d: got %+v, want %+v", i, msgs[i], want)
		}
	}
}

func TestDecodeMessages_DropsIncompleteBlocks(t *testing.T) {
	body := `<Message><MessageId>m1</MessageId><Body>no-handle</Body></Message>` +
		`<Message><MessageId>m2</MessageId><ReceiptHandle>r2</ReceiptHandle><Body>ok</Body></Message>`
	msgs := DecodeMessages(body)
	if len(msgs) != 1 || msgs[0].MessageID != "m2" {
		t.Fatalf("expected only the complete block, got %+v", msgs)
	}
}

func TestUnescapeEntities(t *testing.T) {
	got := UnescapeEntities("&quot;a&quot; &apos;b&apos; &lt;c&gt; d&amp;e")
	want := `"a" 'b' <c> d&e`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	// A single pass: an escaped ampersand must not be double-decoded.
	if got := UnescapeEntities("&amp;quot;"); got != "&quot;" {
		t.Fatalf("double-decoded entity: %q", got)
	}
}
