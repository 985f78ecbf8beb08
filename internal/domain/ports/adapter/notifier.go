package adapter

import "context"

// Event names published by the workers.
const (
	EventScanProgress       = "scan:progress"
	EventScanComplete       = "scan:complete"
	EventScanError          = "scan:error"
	EventFeedbackNew        = "feedback:new"
	EventRetrainingProgress = "retraining:progress"
	EventRetrainingStarted  = "retraining:started"
	EventRetrainingComplete = "retraining:completed"
	EventRetrainingFailed   = "retraining:failed"
	EventRetrainingError    = "retraining:error"
)

// AdminChannel receives feedback and retraining lifecycle events.
const AdminChannel = "events:admin"

func UserChannel(ownerID string) string { return "events:user:" + ownerID }
func JobChannel(jobID string) string    { return "events:job:" + jobID }

// NotificationSink fans events out to subscribed observers. It is an
// optional collaborator: a no-op implementation satisfies it, and callers
// never branch on its presence. Publish failures are best-effort.
type NotificationSink interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// NoopSink drops every event. Used in tests and when no broker is wired.
type NoopSink struct{}

func (NoopSink) Publish(ctx context.Context, channel, event string, payload any) error { return nil }
