// Package queue defines the notification events exchanged over RabbitMQ,
// along with their publisher and the consumer that writes them out.
package queue

// NotificationsQueue is the durable queue every account event goes to.
const NotificationsQueue = "notifications"

const (
	EventUserRegistered         = "user.registered"
	EventPasswordResetRequested = "password_reset.requested"
)

// Event is published after account lifecycle actions. It contains enough
// information for a delivery channel (e-mail, SMS) to notify the account
// holder without querying the primary database. Token and ExpiresAt are only
// set on password_reset.requested.
type Event struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	UserType   string `json:"user_type"`
	Token      string `json:"token,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
