package ftclient

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithTimeout sets the deadline for connecting to the server and for each
// control-channel write and acknowledgment read.
// Zero, the default, waits indefinitely as the server protocol expects.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		c.timeout = timeout
		return nil
	}
}

// WithAcceptTimeout bounds how long the data listener waits for the server
// to connect back. Zero waits indefinitely.
func WithAcceptTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("accept timeout must not be negative")
		}
		c.acceptTimeout = timeout
		return nil
	}
}

// WithReadTimeout bounds the wait for each payload chunk on the data
// connection. Zero waits indefinitely.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("read timeout must not be negative")
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithLogger enables logging using the provided logger.
// Every handshake message and acknowledgment is logged at debug level.
//
// Example:
//
//	logger, _ := zap.NewDevelopment()
//	client, _ := ftclient.New(ftclient.WithLogger(logger))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer for the control connection and the
// route probe.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer must not be nil")
		}
		c.dialer = dialer
		return nil
	}
}

// WithFs sets the filesystem fetched files are written to.
// The default is the operating system filesystem rooted at the working directory.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) error {
		if fs == nil {
			return fmt.Errorf("filesystem must not be nil")
		}
		c.fs = fs
		return nil
	}
}

// WithOutput sets where listings and the not-found sentinel are printed.
// The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Client) error {
		if w == nil {
			w = io.Discard
		}
		c.out = w
		return nil
	}
}

// WithStatus sets where connection progress lines ("Connected to ...",
// "Established connection with ...") are printed. They are discarded by
// default.
func WithStatus(w io.Writer) Option {
	return func(c *Client) error {
		if w == nil {
			w = io.Discard
		}
		c.status = w
		return nil
	}
}

// WithClientAddress sets the address announced to the server instead of
// discovering it with a route probe.
func WithClientAddress(addr string) Option {
	return func(c *Client) error {
		if net.ParseIP(addr) == nil {
			return fmt.Errorf("invalid client address: %q", addr)
		}
		c.clientAddress = addr
		return nil
	}
}

// WithRouteProbe sets the UDP destination used to discover the local
// outbound address. No packet is sent to it.
func WithRouteProbe(addr string) Option {
	return func(c *Client) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid route probe address: %w", err)
		}
		c.routeProbe = addr
		return nil
	}
}

// WithChunkSize sets the size of each read on the data connection.
func WithChunkSize(size int) Option {
	return func(c *Client) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive")
		}
		c.chunkSize = size
		return nil
	}
}

// WithBandwidthLimit caps the receive rate of the data connection in bytes
// per second. Zero disables limiting.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(c *Client) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("bandwidth limit must not be negative")
		}
		c.bandwidthLimit = bytesPerSecond
		return nil
	}
}

// WithProgress registers a callback that receives the running total of
// payload bytes after every read.
func WithProgress(fn func(bytesTransferred int64)) Option {
	return func(c *Client) error {
		c.progress = fn
		return nil
	}
}

// WithAllowedHosts restricts the servers the client will contact.
// Hosts are compared case-insensitively. An empty list allows any host.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *Client) error {
		if len(hosts) == 0 {
			c.allowedHosts = nil
			return nil
		}
		c.allowedHosts = make(map[string]struct{}, len(hosts))
		for _, h := range hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h == "" {
				continue
			}
			c.allowedHosts[h] = struct{}{}
		}
		return nil
	}
}
