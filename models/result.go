package models

// SyncResult is returned by a mailbox sync.
type SyncResult struct {
	InsertedCount int `json:"insertedCount"`
	TotalFetched  int `json:"totalFetched"`
	ParseFailures int `json:"parseFailures"`
}

// SendResult is returned by a send.
type SendResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	EmailID   string `json:"emailId,omitempty"`
}
