// Package eventsink provides EventSink implementations for
// jitterbuf.Buffer's optional state-transition notifications.
//
// RedisEventSink publishes to a Redis pub/sub channel using the
// redis.Cmdable abstraction, so the sink works against both a standalone
// client and a cluster client without changing call sites.
package eventsink
