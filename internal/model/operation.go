package model

import "time"

// OperationKind identifies the INPT notice type.
type OperationKind string

const (
	KindOperation     OperationKind = "operation"
	KindIncidentStart OperationKind = "incident_start"
	KindIncidentEnd   OperationKind = "incident_end"
)

// OperationStatus is the derived state of an announced operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusResolved   OperationStatus = "resolved"
)

// rank orders statuses so that a status never moves backwards.
func (s OperationStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	default:
		return 0
	}
}

// Max returns the more advanced of s and other.
func (s OperationStatus) Max(other OperationStatus) OperationStatus {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// OperationEvent is a classified radio-network (INPT) email.
// Nil optional fields mean the value could not be extracted.
type OperationEvent struct {
	ID              string          `json:"id"`
	Kind            OperationKind   `json:"kind"`
	OperationNumber *string         `json:"operationNumber"`
	Site            *string         `json:"site"`
	DateTime        *string         `json:"dateTime"`
	Status          OperationStatus `json:"status"`
	From            string          `json:"from"`
	Subject         string          `json:"subject"`
	Date            time.Time       `json:"date"`
	Body            string          `json:"body"`

	Synthesized bool `json:"-"`
}

// Key returns the history key.
func (e OperationEvent) Key() string { return e.ID }

// SortTime returns the time the history is ordered by.
func (e OperationEvent) SortTime() time.Time { return e.Date }

// Number returns the operation number or "" when it was not extracted.
func (e OperationEvent) Number() string {
	if e.OperationNumber == nil {
		return ""
	}
	return *e.OperationNumber
}
