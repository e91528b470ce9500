package models

import "time"

// AuditEntry is one immutable line of a group's audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	GroupID   string    `json:"groupId"`
	Message   string    `json:"message"`
}
