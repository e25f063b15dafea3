package ftclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/gonzalop/ftclient/internal/ratelimit"
)

// maxEmptyReads is the number of consecutive (0, nil) reads tolerated before
// a reader is treated as stuck.
const maxEmptyReads = 100

// DataListener is the local socket the server connects back to.
//
// It is bound before the server learns the data port and serves at most one
// peer. The payload is an unframed stream that ends when the server closes
// its side of the connection.
type DataListener struct {
	ln  net.Listener
	tcp *net.TCPListener

	port   int
	logger *zap.Logger

	acceptTimeout time.Duration
	readTimeout   time.Duration
	chunkSize     int
	limiter       *ratelimit.Limiter
	progress      func(int64)
	status        io.Writer

	mu       sync.Mutex
	conn     net.Conn
	closed   bool
	closeErr error
}

// Listen binds the data port on all interfaces.
// A bind failure is reported as a *ListenError.
func (c *Client) Listen(ctx context.Context, port int) (*DataListener, error) {
	if err := validatePort("data_port", port); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, &ListenError{Port: port, Err: err}
	}
	c.logger.Debug("data listener ready", zap.String("addr", ln.Addr().String()))

	tcp, _ := ln.(*net.TCPListener)
	return &DataListener{
		// Only one inbound connection is expected per session.
		ln:            netutil.LimitListener(ln, 1),
		tcp:           tcp,
		port:          port,
		logger:        c.logger,
		acceptTimeout: c.acceptTimeout,
		readTimeout:   c.readTimeout,
		chunkSize:     c.chunkSize,
		limiter:       ratelimit.New(c.bandwidthLimit),
		progress:      c.progress,
		status:        c.status,
	}, nil
}

// Port returns the bound data port.
func (dl *DataListener) Port() int {
	return dl.port
}

// Addr returns the listener's network address.
func (dl *DataListener) Addr() net.Addr {
	return dl.ln.Addr()
}

// AwaitPayload blocks until the server connects, reads the whole payload and
// returns it as text with trailing NUL padding removed.
//
// The listener and the accepted connection are closed before returning,
// whether or not the transfer succeeded.
func (dl *DataListener) AwaitPayload(ctx context.Context) (string, error) {
	defer dl.Close()

	stop := closeOnDone(ctx, dl)
	defer stop()

	conn, err := dl.accept()
	if err != nil {
		if isDeadline(err) {
			return "", &TimeoutError{Op: "accept", Err: err}
		}
		return "", ctxErr(ctx, err)
	}
	dl.logger.Info("established data connection", zap.String("peer", conn.RemoteAddr().String()))
	fmt.Fprintf(dl.status, "Established connection with %s...\n", conn.RemoteAddr())

	var r io.Reader = withDeadlines(conn, dl.readTimeout)
	r = ratelimit.NewReader(ctx, r, dl.limiter)
	r = withProgress(r, dl.progress)

	raw, err := ReadPayload(r, dl.chunkSize)
	if err != nil {
		if isDeadline(err) {
			return "", &TimeoutError{Op: "read payload", Err: err}
		}
		return "", ctxErr(ctx, err)
	}
	dl.logger.Debug("payload received", zap.Int("bytes", len(raw)))

	return DecodePayload(raw)
}

// accept waits for the server's single data connection.
func (dl *DataListener) accept() (net.Conn, error) {
	if dl.acceptTimeout > 0 && dl.tcp != nil {
		if err := dl.tcp.SetDeadline(time.Now().Add(dl.acceptTimeout)); err != nil {
			return nil, err
		}
	}

	conn, err := dl.ln.Accept()
	if err != nil {
		return nil, err
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.closed {
		conn.Close()
		return nil, net.ErrClosed
	}
	dl.conn = conn
	return conn, nil
}

// Close closes the accepted connection, if any, and the listener.
// It is safe to call more than once.
func (dl *DataListener) Close() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.closed {
		return dl.closeErr
	}
	dl.closed = true

	var connErr error
	if dl.conn != nil {
		connErr = dl.conn.Close()
	}
	dl.closeErr = multierr.Combine(connErr, dl.ln.Close())
	return dl.closeErr
}

// ReadPayload reads r in chunkSize pieces until end of stream and returns the
// concatenated bytes in arrival order. End of stream is the only terminator;
// there is no length prefix or delimiter.
func ReadPayload(r io.Reader, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var payload bytes.Buffer
	chunk := make([]byte, chunkSize)
	empty := 0
	for {
		n, err := r.Read(chunk)
		payload.Write(chunk[:n])

		if errors.Is(err, io.EOF) {
			return payload.Bytes(), nil
		}
		if err != nil {
			return payload.Bytes(), err
		}

		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return payload.Bytes(), io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
}

// DecodePayload interprets raw as UTF-8 text and strips trailing NUL padding.
// Bytes that are not valid UTF-8 yield a *DecodeError.
func DecodePayload(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &DecodeError{Offset: firstInvalid(raw)}
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// firstInvalid returns the offset of the first byte that does not start a
// valid UTF-8 sequence.
func firstInvalid(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}
