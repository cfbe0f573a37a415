package jitterbuf

import "context"

// NoopEventSink discards every state event. It is the default EventSink
// when Config.EventSink is nil, used by callers with no host event bus to
// post to.
type NoopEventSink struct{}

// PostStateEvent implements EventSink.
func (NoopEventSink) PostStateEvent(context.Context, StateEvent) error {
	return nil
}
