package model

import "time"

// WireTime is the timestamp layout used on the wire and in chat-facing
// output: UTC, second precision.
const WireTime = "2006-01-02 15:04:05"

// WireDate is the date layout used in callback tokens (date:<YYYY-MM-DD>).
const WireDate = "2006-01-02"

type Service struct {
	ID          string
	Name        string
	DurationMin int
	Active      bool
}

type Slot struct {
	ID          string
	ServiceID   string
	Start       time.Time
	End         time.Time
	Capacity    int
	BookedCount int
}

type BookingSummary struct {
	ID          string
	ServiceName string
	Start       time.Time
}

type ChatUser struct {
	ChatID    string
	Username  string
	FirstName string
	LastName  string
}
