package ftclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultRouteProbe is the UDP destination used to pick the local outbound
// interface. Connecting a UDP socket sends nothing.
const DefaultRouteProbe = "8.8.8.8:80"

// DefaultChunkSize is the size of each read on both channels.
const DefaultChunkSize = 1024

// Client runs sessions against a file-transfer server.
// A Client holds configuration only; it is safe to reuse across sessions.
type Client struct {
	// timeout applies to the control dial and to every control read/write
	timeout time.Duration

	// acceptTimeout bounds the wait for the server's data connection
	acceptTimeout time.Duration

	// readTimeout bounds each read on the data connection
	readTimeout time.Duration

	logger *zap.Logger
	dialer *net.Dialer

	// fs receives fetched files
	fs afero.Fs

	// out receives listings and the not-found sentinel
	out io.Writer

	// status receives connection progress lines
	status io.Writer

	// clientAddress overrides route probing when set
	clientAddress string
	routeProbe    string

	chunkSize      int
	bandwidthLimit int64
	progress       func(int64)

	// allowedHosts is nil when any host may be contacted
	allowedHosts map[string]struct{}
}

// New returns a Client configured by the given options.
//
// Example:
//
//	client, err := ftclient.New(
//	    ftclient.WithTimeout(10*time.Second),
//	    ftclient.WithAcceptTimeout(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	listing, err := client.List(ctx, "flip1.example.edu", 30021, 30020)
func New(options ...Option) (*Client, error) {
	c := &Client{
		dialer:     &net.Dialer{},
		logger:     zap.NewNop(),
		fs:         afero.NewOsFs(),
		out:        os.Stdout,
		status:     io.Discard,
		routeProbe: DefaultRouteProbe,
		chunkSize:  DefaultChunkSize,
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.dialer.Timeout == 0 {
		c.dialer.Timeout = c.timeout
	}

	return c, nil
}

// checkHost enforces the allow-list configured with WithAllowedHosts.
func (c *Client) checkHost(host string) error {
	if c.allowedHosts == nil {
		return nil
	}
	if _, ok := c.allowedHosts[strings.ToLower(host)]; ok {
		return nil
	}
	return &ValidationError{Field: "host", Value: host, Reason: "not in the allowed host list"}
}

// LocalAddress returns the IP address announced to the server.
//
// An address set with WithClientAddress wins. Otherwise a UDP socket is
// connected toward the route probe and its local endpoint is used. If the
// probe has no route, the local endpoint of the control connection is used.
func (c *Client) LocalAddress(ctx context.Context, cc *ControlConn) (string, error) {
	if c.clientAddress != "" {
		return c.clientAddress, nil
	}

	probe, err := c.dialer.DialContext(ctx, "udp", c.routeProbe)
	if err == nil {
		defer probe.Close()
		if host, _, err := net.SplitHostPort(probe.LocalAddr().String()); err == nil {
			return host, nil
		}
	}
	c.logger.Debug("route probe failed, using control connection address",
		zap.String("probe", c.routeProbe), zap.Error(err))

	if cc == nil || cc.conn == nil {
		return "", fmt.Errorf("cannot determine client address: %w", err)
	}
	host, _, splitErr := net.SplitHostPort(cc.conn.LocalAddr().String())
	if splitErr != nil {
		return "", fmt.Errorf("cannot determine client address: %w", splitErr)
	}
	return host, nil
}
