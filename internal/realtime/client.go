package realtime

// Client is one authenticated socket session. It abstracts the transport so
// the registry and the engines can be exercised with test doubles.
type Client interface {
	// UserID returns the authenticated user behind the session.
	UserID() uint
	// SessionID distinguishes multiple sessions of the same user.
	SessionID() string
	// Token returns the bearer credential presented at the handshake, so
	// handlers can re-verify expiry per inbound event.
	Token() string

	// Send returns the channel the registry writes outbound envelopes to.
	Send() chan<- Envelope

	// Run starts the session's read and write pumps.
	Run()
	// Close signals the session to shut down. It must be safe to call
	// concurrently with writes to the send channel.
	Close()
}
