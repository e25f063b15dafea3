package ftclient

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// UsageError reports a malformed command line: the wrong number of
// arguments or an argument that cannot be parsed at all.
type UsageError struct {
	Reason string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return "ftclient: incorrect usage: " + e.Reason
}

// ValidationError reports a session input that falls outside the values the
// server accepts (unknown command, port out of range, missing filename).
type ValidationError struct {
	// Field is the name of the rejected input (e.g., "data_port")
	Field string

	// Value is the rejected value as the user supplied it
	Value string

	// Reason describes the constraint that was violated
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("ftclient: invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("ftclient: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ConnectError is returned when the control connection cannot be established.
// The session is not retried.
type ConnectError struct {
	// Addr is the host:port that was dialed
	Addr string

	// Err is the underlying dial error
	Err error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("ftclient: error connecting to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying dial error.
func (e *ConnectError) Unwrap() error { return e.Err }

// HandshakeError is returned when a handshake step is not acknowledged.
// An acknowledgment is any non-empty read; an empty read or a closed
// connection aborts the whole session.
type HandshakeError struct {
	// Step names the message that went unacknowledged (e.g., "data port")
	Step string

	// Err is the underlying I/O error, if any. It is nil when the server
	// simply closed the connection.
	Err error
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ftclient: handshake failed at %s: no acknowledgment", e.Step)
	}
	return fmt.Sprintf("ftclient: handshake failed at %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *HandshakeError) Unwrap() error { return e.Err }

// ListenError is returned when the local data port cannot be bound.
type ListenError struct {
	Port int
	Err  error
}

// Error implements the error interface.
func (e *ListenError) Error() string {
	return fmt.Sprintf("ftclient: cannot listen on data port %d: %v", e.Port, e.Err)
}

// Unwrap returns the underlying listen error.
func (e *ListenError) Unwrap() error { return e.Err }

// TimeoutError is returned when a configured deadline expires while waiting
// on the control or data channel.
type TimeoutError struct {
	// Op is the operation that timed out (e.g., "accept", "ack command")
	Op string

	Err error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ftclient: %s timed out: %v", e.Op, e.Err)
}

// Unwrap returns the underlying deadline error.
func (e *TimeoutError) Unwrap() error { return e.Err }

// DecodeError is returned when the received payload is not valid UTF-8.
type DecodeError struct {
	// Offset is the index of the first invalid byte
	Offset int
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("ftclient: payload is not valid UTF-8 text (byte %d)", e.Offset)
}

// PersistError is returned when a fetched payload cannot be written locally.
type PersistError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("ftclient: cannot write %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *PersistError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return isDeadline(err)
}

// isDeadline reports whether err is a raw network deadline error.
func isDeadline(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
