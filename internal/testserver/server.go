// Package testserver provides a scriptable server for the two-channel
// transfer protocol, used to exercise the client end to end.
//
// Each control connection is handled in its own goroutine: every message is
// read with a single read and acknowledged, then the server dials the
// client's data port and streams the payload before closing.
package testserver

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// NotFound is the reply sent for a fetch of an unknown file.
const NotFound = "File not found."

// Server is a stub file-transfer server.
type Server struct {
	// listing is the reply to "-l"
	listing string

	// files maps names to contents for "-g"
	files map[string]string

	// raw, when set, replaces every payload
	raw []byte

	// padding is the number of NUL bytes appended to each payload
	padding int

	// ack is written after every accepted message
	ack string

	// dropAt closes the control connection instead of acknowledging the
	// given (1-based) message; 0 disables it
	dropAt int

	// noConnect skips the data connection entirely
	noConnect bool

	// writeChunk splits the payload into writes of this size
	writeChunk int

	// dataHost overrides the address the server dials back to
	dataHost string

	logger *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	received [][]string
	closed   bool
}

// Option configures a Server.
type Option func(*Server)

// WithListing sets the directory listing returned for "-l".
func WithListing(listing string) Option {
	return func(s *Server) { s.listing = listing }
}

// WithFile adds a file that "-g" can fetch.
func WithFile(name, contents string) Option {
	return func(s *Server) { s.files[name] = contents }
}

// WithRawPayload sends raw instead of any listing or file contents.
func WithRawPayload(raw []byte) Option {
	return func(s *Server) { s.raw = raw }
}

// WithPadding appends n NUL bytes to each payload.
func WithPadding(n int) Option {
	return func(s *Server) { s.padding = n }
}

// WithAck sets the acknowledgment text.
func WithAck(ack string) Option {
	return func(s *Server) { s.ack = ack }
}

// WithDropAt closes the control connection when message n arrives.
func WithDropAt(n int) Option {
	return func(s *Server) { s.dropAt = n }
}

// WithoutConnectBack completes the handshake but never opens the data connection.
func WithoutConnectBack() Option {
	return func(s *Server) { s.noConnect = true }
}

// WithWriteChunk sends the payload in writes of n bytes.
func WithWriteChunk(n int) Option {
	return func(s *Server) { s.writeChunk = n }
}

// WithDataHost dials host instead of the address announced by the client.
func WithDataHost(host string) Option {
	return func(s *Server) { s.dataHost = host }
}

// WithLogger sets the server's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New returns an unstarted server.
func New(options ...Option) *Server {
	s := &Server{
		files:  make(map[string]string),
		ack:    "ACK",
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start listens on a loopback port and serves in the background.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.serve()
	return ln.Addr().String(), nil
}

// Port returns the control port the server listens on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(conn)
		}()
	}
}

// handleSession runs one control connection.
func (s *Server) handleSession(conn net.Conn) {
	defer conn.Close()

	idx := s.newSession()
	buf := make([]byte, 1024)
	var msgs []string
	for {
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			return
		}
		msg := string(buf[:n])
		msgs = append(msgs, msg)
		s.record(idx, msg)

		if s.dropAt > 0 && len(msgs) == s.dropAt {
			s.logger.Debug("dropping control connection", zap.Int("message", len(msgs)))
			return
		}
		if _, err := io.WriteString(conn, s.ack); err != nil {
			return
		}

		if expected(msgs) == len(msgs) {
			break
		}
	}

	if !s.noConnect {
		if err := s.sendPayload(msgs); err != nil {
			s.logger.Debug("data connection failed", zap.Error(err))
		}
	}

	// Wait for the client to hang up.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.Copy(io.Discard, conn)
}

// expected returns the handshake length implied by the command message.
func expected(msgs []string) int {
	if len(msgs) > 0 && msgs[0] == "-g" {
		return 4
	}
	return 3
}

// sendPayload dials the client's data port and streams the reply.
func (s *Server) sendPayload(msgs []string) error {
	if len(msgs) < 3 {
		return errors.New("incomplete handshake")
	}
	port, err := strconv.Atoi(msgs[1])
	if err != nil {
		return err
	}
	host := msgs[2]
	if s.dataHost != "" {
		host = s.dataHost
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := s.payloadFor(msgs)
	chunk := s.writeChunk
	if chunk <= 0 {
		chunk = len(payload)
	}
	for len(payload) > 0 {
		n := min(chunk, len(payload))
		if _, err := conn.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

func (s *Server) payloadFor(msgs []string) []byte {
	var body []byte
	switch {
	case s.raw != nil:
		body = append(body, s.raw...)
	case msgs[0] == "-g":
		contents, ok := s.files[msgs[3]]
		if !ok {
			return []byte(NotFound)
		}
		body = []byte(contents)
	default:
		body = []byte(s.listing)
	}
	for range s.padding {
		body = append(body, 0)
	}
	return body
}

func (s *Server) newSession() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, nil)
	return len(s.received) - 1
}

func (s *Server) record(idx int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[idx] = append(s.received[idx], msg)
}

// Received returns the messages of every control session, in arrival order.
func (s *Server) Received() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.received))
	for i, msgs := range s.received {
		out[i] = append([]string(nil), msgs...)
	}
	return out
}

// Close stops the server and waits for in-flight sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Start runs a server for the duration of the test.
func Start(t testing.TB, options ...Option) *Server {
	t.Helper()
	s := New(options...)
	if _, err := s.Start(); err != nil {
		t.Fatalf("testserver: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// FreePort returns a TCP port that was free a moment ago.
func FreePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("testserver: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
