package ftclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// maxAckSize is the largest acknowledgment read after each control message.
const maxAckSize = 1024

// ControlConn owns the TCP connection to the server's control port.
//
// Messages are raw text without framing or line terminators; each one is
// answered by exactly one acknowledgment read before the next is sent.
type ControlConn struct {
	conn   net.Conn
	addr   string
	logger *zap.Logger
}

// DialControl connects to the server's control port.
// A failed connection is reported as a *ConnectError and is not retried.
func (c *Client) DialControl(ctx context.Context, s *Session) (*ControlConn, error) {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.ControlPort))
	logger := c.logger.With(zap.String("session", s.ID))
	logger.Debug("connecting to server", zap.String("addr", addr))

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: ctxErr(ctx, err)}
	}
	logger.Info("connected to server", zap.String("addr", addr))
	fmt.Fprintf(c.status, "Connected to %s on port %d\n", s.Host, s.ControlPort)

	return &ControlConn{
		conn:   withDeadlines(conn, c.timeout),
		addr:   addr,
		logger: logger,
	}, nil
}

// Negotiate runs the handshake: command, data port, client address and, for
// Get, the filename. Each message must be acknowledged before the next one is
// sent; the first missing acknowledgment aborts the session with a
// *HandshakeError. On success the agreed data port is returned.
//
// The data listener must already be accepting on s.DataPort, since the
// server may connect back as soon as it has the client address.
func (cc *ControlConn) Negotiate(ctx context.Context, s *Session) (int, error) {
	if s.ClientAddress == "" {
		return 0, &ValidationError{Field: "client_address", Reason: "must be resolved before negotiation"}
	}

	stop := closeOnDone(ctx, cc.conn)
	defer stop()

	for _, step := range s.Messages() {
		if err := cc.exchange(step); err != nil {
			return 0, ctxErr(ctx, err)
		}
	}

	cc.logger.Debug("handshake complete", zap.Int("data_port", s.DataPort))
	return s.DataPort, nil
}

// exchange sends one handshake message and waits for its acknowledgment.
func (cc *ControlConn) exchange(step HandshakeStep) error {
	cc.logger.Debug("handshake send", zap.String("step", step.Name), zap.String("payload", step.Payload))

	if _, err := io.WriteString(cc.conn, step.Payload); err != nil {
		if isDeadline(err) {
			return &TimeoutError{Op: "send " + step.Name, Err: err}
		}
		return &HandshakeError{Step: step.Name, Err: err}
	}

	ack, err := readAck(cc.conn)
	if err != nil {
		if isDeadline(err) {
			return &TimeoutError{Op: "ack " + step.Name, Err: err}
		}
		return &HandshakeError{Step: step.Name, Err: err}
	}
	if len(ack) == 0 {
		return &HandshakeError{Step: step.Name}
	}

	cc.logger.Debug("handshake ack", zap.String("step", step.Name), zap.ByteString("ack", ack))
	return nil
}

// readAck performs a single read of up to maxAckSize bytes.
// A clean close yields an empty ack and no error.
func readAck(r io.Reader) ([]byte, error) {
	buf := make([]byte, maxAckSize)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, err
}

// Addr returns the server address this connection was dialed to.
func (cc *ControlConn) Addr() string {
	return cc.addr
}

// Close closes the control connection.
func (cc *ControlConn) Close() error {
	if cc == nil || cc.conn == nil {
		return nil
	}
	return cc.conn.Close()
}
