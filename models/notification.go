package models

import "time"

// Notification types.
const (
	NotificationNewEmail     = "new_email"
	NotificationStatusChange = "status_change"
)

// Notification is pushed to a user's open websocket and SSE streams.
type Notification struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Time    time.Time              `json:"time"`
}
