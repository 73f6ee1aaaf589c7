package chat

// Peer is the transport side of one live connection.
type Peer interface {
	ID() string
	// Emit queues an encoded frame without blocking. A closed peer
	// returns errs.ErrConnClosed, a saturated one errs.ErrSendQueueFull.
	Emit(frame []byte) error
	Close() error
}

// Handshake carries the metadata extracted when a connection is accepted.
type Handshake struct {
	UserID string // claimed, not verified at this layer
	Remote string
}
