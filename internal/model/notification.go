package model

// EmailType labels the classifier a notification came from.
type EmailType string

const (
	EmailTypePower     EmailType = "Power"
	EmailTypeOperation EmailType = "Operation"
)

// NotificationData carries the routing hints the dashboard uses when the
// notification is clicked.
type NotificationData struct {
	EmailType EmailType `json:"emailType"`
	ID        string    `json:"id"`
}

// Notification is the JSON payload pushed to subscribers.
type Notification struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}
