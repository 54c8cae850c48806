// Package session tracks foreground interactive sessions. While any session
// is active, background self-modification (evolution sweeps, autosave)
// defers so it never competes with a live conversation for provider capacity.
package session

import "time"

// Session is one foreground interaction window.
type Session interface {
	// ID returns the unique session identifier.
	ID() string

	// Started returns when the session began.
	Started() time.Time

	// Touch records activity, postponing idle expiry.
	Touch()

	// End closes the session. Calling End more than once is a no-op.
	End()
}
