package model

import "time"

// PowerEventType distinguishes UPS notices from alerts.
type PowerEventType string

const (
	PowerAdministrative PowerEventType = "administrative"
	PowerAlert          PowerEventType = "alert"
)

// PowerEvent is a classified power-backup (onduleur) email.
// Extracted text fields are never null: a miss is the empty string.
type PowerEvent struct {
	ID        string         `json:"id"`
	Type      PowerEventType `json:"type"`
	Message   string         `json:"message"`
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	From      string         `json:"from"`
	Subject   string         `json:"subject"`
	Date      time.Time      `json:"date"`

	// Synthesized mirrors Email.Synthesized for the id above.
	Synthesized bool `json:"-"`
}

// Key returns the history key.
func (e PowerEvent) Key() string { return e.ID }

// SortTime returns the time the history is ordered by.
func (e PowerEvent) SortTime() time.Time { return e.Date }
