package models

// NotificationSeverity controls how a client renders an acknowledgement.
type NotificationSeverity string

const (
	SeveritySuccess NotificationSeverity = "success"
	SeverityWarning NotificationSeverity = "warning"
)

// Acknowledgement kinds and follow-up actions understood by clients.
const (
	NotificationKind      = "notification"
	FollowUpActionRefresh = "refresh"
)

// Notification is returned by enroll and unenroll so the caller can display a
// toast and refresh its view.
type Notification struct {
	Kind           string               `json:"kind"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	Severity       NotificationSeverity `json:"severity"`
	FollowUpAction string               `json:"follow_up_action"`
}

// NewNotification builds a notification that asks the client to refresh.
func NewNotification(title, message string, severity NotificationSeverity) Notification {
	return Notification{
		Kind:           NotificationKind,
		Title:          title,
		Message:        message,
		Severity:       severity,
		FollowUpAction: FollowUpActionRefresh,
	}
}
