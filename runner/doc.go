// Package runner executes a root agent against a stored session.
//
// A run appends the user's content to the session, starts the agent on a
// working copy of the session and pumps the events the agent emits: state
// deltas are applied to the store, non-partial events are appended to the
// history and every event is streamed to the caller. Runs can be cancelled
// by id, and lifecycle callbacks observe or veto each step.
//
//	r := runner.New(root, func(o *runner.Options) {
//	  o.SessionStore = store
//	  o.Logger = logger
//	})
//	_, events, err := r.RunSync(ctx, "session-1", core.NewTextContent("user", "hi"))
package runner
