package model

import "time"

// SubscriptionKind selects which notifications a push subscriber receives.
type SubscriptionKind string

const (
	SubscriptionTicket SubscriptionKind = "ticket"
	SubscriptionEmail  SubscriptionKind = "email"
)

// Valid reports whether k is a known kind.
func (k SubscriptionKind) Valid() bool {
	return k == SubscriptionTicket || k == SubscriptionEmail
}

// Subscriber is a browser push subscription.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	Kind      SubscriptionKind `json:"kind" db:"kind"`
	Endpoint  string           `json:"endpoint" db:"endpoint"`
	P256dh    string           `json:"p256dh" db:"p256dh"`
	Auth      string           `json:"auth" db:"auth"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
