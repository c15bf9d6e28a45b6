// Package sqs is a minimal client for the queue provider's signed HTTP
// protocol: url-encoded Action requests, SigV4 authentication, and a flat
// tag-delimited response body. Calls are not retried here; redelivery
// policy belongs to the consumer.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/sigv4"
)

const (
	apiVersion = "2012-11-05"

	// Provider-side ceilings for a single receive call.
	MaxReceiveBatch = 10
	MaxWaitSeconds  = 20
)

type TransportError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sqs %s failed: status %d: %s", e.Action, e.StatusCode, e.Body)
}

type Config struct {
	QueueURL          string
	Region            string
	AccessKeyID       string
	SecretAccessKey   string
	VisibilityTimeout int // seconds; 0 means provider default
	HTTPClient        *http.Client
}

type Client struct {
	queueURL   string
	creds      sigv4.Credentials
	visibility int
	http       *http.Client
	now        func() time.Time
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, errors.New("sqs: queue url is required")
	}
	if _, err := url.Parse(cfg.QueueURL); err != nil {
		return nil, fmt.Errorf("sqs: invalid queue url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		queueURL: cfg.QueueURL,
		creds: sigv4.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Region:          cfg.Region,
			Service:         "sqs",
		},
		visibility: cfg.VisibilityTimeout,
		http:       httpClient,
		now:        time.Now,
	}, nil
}

// Send enqueues payload as a message body and returns the provider-assigned
// message id.
func (c *Client) Send(ctx context.Context, payload string) (string, error) {
	params := url.Values{
		"Action":      {"SendMessage"},
		"Version":     {apiVersion},
		"MessageBody": {payload},
	}
	body, err := c.call(ctx, "SendMessage", params)
	if err != nil {
		return "", err
	}
	return pickTag(body, "MessageId"), nil
}

// Receive long-polls for up to max messages. max and waitSeconds are
// clamped to the provider's ceilings.
func (c *Client) Receive(ctx context.Context, max, waitSeconds int) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	if max > MaxReceiveBatch {
		max = MaxReceiveBatch
	}
	if waitSeconds < 0 {
		waitSeconds = 0
	}
	if waitSeconds > MaxWaitSeconds {
		waitSeconds = MaxWaitSeconds
	}
	params := url.Values{
		"Action":              {"ReceiveMessage"},
		"Version":             {apiVersion},
		"MaxNumberOfMessages": {strconv.Itoa(max)},
		"WaitTimeSeconds":     {strconv.Itoa(waitSeconds)},
	}
	if c.visibility > 0 {
		params.Set("VisibilityTimeout", strconv.Itoa(c.visibility))
	}
	body, err := c.call(ctx, "ReceiveMessage", params)
	if err != nil {
		return nil, err
	}
	return DecodeMessages(body), nil
}

// Delete acknowledges a message. The receipt handle must come from the most
// recent delivery; handles from superseded deliveries are rejected by the
// provider.
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	params := url.Values{
		"Action":        {"DeleteMessage"},
		"Version":       {apiVersion},
		"ReceiptHandle": {receiptHandle},
	}
	_, err := c.call(ctx, "DeleteMessage", params)
	return err
}

func (c *Client) call(ctx context.Context, action string, params url.Values) (string, error) {
	reqBody := params.Encode()
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded; charset=utf-8",
	}
	signed, err := sigv4.Sign(http.MethodPost, c.queueURL, headers, []byte(reqBody), c.creds, c.now())
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queueURL, strings.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	for k, v := range signed {
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sqs %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sqs %s: read response: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Action: action, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return string(raw), nil
}
