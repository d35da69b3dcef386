package domain

import "context"

// NotifyLevel is the severity of a user-facing notification.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)

// Notification is a human-readable message for the user.
type Notification struct {
	Level   NotifyLevel `json:"level"`
	Title   string      `json:"title,omitempty"`
	Message string      `json:"message"`
	// Code is set for failures so receivers can decide on remediation.
	Code ErrorCode `json:"code,omitempty"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Name() string
}
