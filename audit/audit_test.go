package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian/loyalty-engine/audit"
)

type failingSink struct{}

func (failingSink) Record(context.Context, audit.Event) error {
	return errors.New("sink down")
}

func TestTry_NilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		audit.Try(context.Background(), nil, audit.Event{Action: audit.ActionAddTransaction})
	})
}

func TestTry_SinkFailureIsSwallowed(t *testing.T) {
	assert.NotPanics(t, func() {
		audit.Try(context.Background(), failingSink{}, audit.Event{Action: audit.ActionAddTransaction})
	})
}

func TestTry_StampsTimeAndRecords(t *testing.T) {
	sink := &audit.MemorySink{}

	audit.Try(context.Background(), sink, audit.Event{
		Actor:    "reviewer-1",
		Resource: "pt-1",
		Action:   audit.ActionChangeStatus,
		Before:   "pending",
		After:    "approved",
	})

	events := sink.Events()
	assert.Len(t, events, 1)
	assert.False(t, events[0].At.IsZero(), "Try must stamp the event time")
	assert.Equal(t, audit.ActionChangeStatus, events[0].Action)
}
