package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name    string
	filter  EventFilter
	events  []Event
	failErr error
}

func (o *recordingObserver) Name() string      { return o.name }
func (o *recordingObserver) Filter() EventFilter { return o.filter }
func (o *recordingObserver) OnEvent(ctx context.Context, event Event) error {
	o.events = append(o.events, event)
	return o.failErr
}

func TestDispatcher_EmitNotifiesAllMatchingObservers(t *testing.T) {
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}
	d := NewDispatcher(a, b)

	err := d.Emit(context.Background(), Event{Type: EventRunStarted, Runtime: "r1"})
	require.NoError(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestDispatcher_FilterExcludesNonMatchingObserver(t *testing.T) {
	a := &recordingObserver{name: "a", filter: &RuntimeFilter{Runtime: "r1"}}
	b := &recordingObserver{name: "b", filter: &RuntimeFilter{Runtime: "r2"}}
	d := NewDispatcher(a, b)

	require.NoError(t, d.Emit(context.Background(), Event{Type: EventRunStarted, Runtime: "r1"}))
	assert.Len(t, a.events, 1)
	assert.Empty(t, b.events)
}

func TestDispatcher_CollectsFirstErrorButNotifiesAll(t *testing.T) {
	a := &recordingObserver{name: "a", failErr: errors.New("a failed")}
	b := &recordingObserver{name: "b"}
	d := NewDispatcher(a, b)

	err := d.Emit(context.Background(), Event{Type: EventRunStarted})
	assert.EqualError(t, err, "a failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1, "a later observer must still be notified after an earlier one fails")
}

func TestDispatcher_AttachAddsObserverAfterConstruction(t *testing.T) {
	d := NewDispatcher()
	a := &recordingObserver{name: "a"}
	d.Attach(a)

	require.NoError(t, d.Emit(context.Background(), Event{Type: EventRunStarted}))
	assert.Len(t, a.events, 1)
}

func TestDispatcher_EmitStampsTimestampWhenZero(t *testing.T) {
	a := &recordingObserver{name: "a"}
	d := NewDispatcher(a)

	require.NoError(t, d.Emit(context.Background(), Event{Type: EventRunStarted}))
	require.Len(t, a.events, 1)
	assert.False(t, a.events[0].Timestamp.IsZero())
}

func TestEventTypeFilter_PassesOnlyListedTypes(t *testing.T) {
	f := NewEventTypeFilter(EventRunStarted, EventRunCompleted)
	assert.True(t, f.ShouldNotify(Event{Type: EventRunStarted}))
	assert.False(t, f.ShouldNotify(Event{Type: EventServiceFailed}))
}

func TestEventTypeFilter_EmptyArgsReturnsNilFilter(t *testing.T) {
	f := NewEventTypeFilter()
	assert.Nil(t, f)
}
