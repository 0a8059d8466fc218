// Package notify announces terminal run outcomes to the operator.
package notify

import (
	"fmt"

	"github.com/forgeworks/appforge/internal/progress"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// Sink adapts a Notifier to the progress stream. Only terminal events
// produce a notification; send failures are dropped so the pipeline
// never blocks on a broken notification channel.
func Sink(notifier Notifier) progress.Sink {
	return progress.SinkFunc(func(e progress.Event) {
		if !e.Type.Terminal() {
			return
		}
		n := Notification{RunID: e.RunID}
		switch e.Type {
		case progress.EventRunComplete:
			n.Type = NotifySuccess
			n.Title = "Generation run complete"
			n.Message = fmt.Sprintf("run %s finished successfully", e.RunID)
		case progress.EventRunError:
			n.Type = NotifyError
			n.Title = "Generation run failed"
			n.Message = fmt.Sprintf("run %s: %v", e.RunID, e.Payload["reason"])
		}
		_ = notifier.Send(n)
	})
}
