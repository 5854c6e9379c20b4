package domain

import "time"

// Entry represents one audit event.
type Entry struct {
	ID        string
	UserID    string
	Action    string
	Detail    string
	IP        string
	CreatedAt time.Time
}
