package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/progress"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestSinkIgnoresNonTerminalEvents(t *testing.T) {
	rec := &recordingNotifier{}
	sink := Sink(rec)

	for _, typ := range []progress.EventType{
		progress.EventStageStart,
		progress.EventStageDone,
		progress.EventLoopIteration,
		progress.EventLoopDone,
	} {
		sink.Emit(progress.Event{Type: typ, RunID: "run-1"})
	}

	assert.Empty(t, rec.sent)
}

func TestSinkNotifiesOnCompletion(t *testing.T) {
	rec := &recordingNotifier{}
	Sink(rec).Emit(progress.Event{Type: progress.EventRunComplete, RunID: "run-1"})

	require.Len(t, rec.sent, 1)
	n := rec.sent[0]
	assert.Equal(t, NotifySuccess, n.Type)
	assert.Equal(t, "run-1", n.RunID)
	assert.Contains(t, n.Message, "finished successfully")
}

func TestSinkNotifiesOnFailureWithReason(t *testing.T) {
	rec := &recordingNotifier{}
	Sink(rec).Emit(progress.Event{
		Type:    progress.EventRunError,
		RunID:   "run-2",
		Payload: map[string]any{"reason": "sandbox retries exhausted"},
	})

	require.Len(t, rec.sent, 1)
	n := rec.sent[0]
	assert.Equal(t, NotifyError, n.Type)
	assert.Contains(t, n.Message, "sandbox retries exhausted")
}

func TestSinkDropsSendErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("webhook down")}
	assert.NotPanics(t, func() {
		Sink(rec).Emit(progress.Event{Type: progress.EventRunError, RunID: "run-3"})
	})
	assert.Len(t, rec.sent, 1)
}

func TestMultiNotifierSendsToAllAndKeepsLastError(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("no display")}

	err := NewMultiNotifier(bad, ok).Send(Notification{Title: "t", Message: "m"})

	require.Error(t, err)
	assert.Len(t, ok.sent, 1, "a failing notifier must not mask the others")
	assert.Len(t, bad.sent, 1)
}
