// Package session provides core.SessionStore implementations.
//
// InMemoryStore keeps sessions in a process local map and suits tests and
// single-process deployments. RedisStore persists state and event history in
// Redis so sessions survive restarts and can be shared between replicas.
//
// Both stores create sessions lazily on Get, AppendEvent and ApplyDelta and
// hand out clones, so callers never mutate stored data directly.
package session
