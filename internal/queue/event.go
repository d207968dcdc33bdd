// Package queue carries notifications and match requests over RabbitMQ.
package queue

const (
	notificationQueue = "dac.notifications"
	matchQueue        = "dac.match.reprocess"
)

// NotificationEvent asks the notification consumer to tell recipients
// about something that happened to a request or election.
type NotificationEvent struct {
	Kind       string            `json:"kind"`
	Recipients []uint64          `json:"recipients"`
	Data       map[string]string `json:"data,omitempty"`
	SentAt     string            `json:"sent_at"`
}

// MatchEvent asks the matcher to re-run for a DAR or consent reference.
type MatchEvent struct {
	ReferenceID string `json:"reference_id"`
	RequestedAt string `json:"requested_at"`
}
