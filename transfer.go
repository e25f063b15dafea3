package ftclient

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run executes one session: it binds the data port, connects to the control
// port, negotiates, receives the payload and acts on it.
//
// The data listener is bound before any handshake message is sent, so the
// server can connect back as soon as it has the client address. Negotiation
// and the payload wait run concurrently; if either fails, the other is
// cancelled and the first error is returned.
//
// Example:
//
//	s, err := ftclient.NewSession("flip1.example.edu", 30021, ftclient.Get, "notes.txt", 30020)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := client.Run(ctx, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.NotFound() {
//	    fmt.Println("no such file")
//	}
func (c *Client) Run(ctx context.Context, s *Session) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := c.checkHost(s.Host); err != nil {
		return nil, err
	}
	logger := c.logger.With(zap.String("session", s.ID), zap.Stringer("command", s.Command))

	dl, err := c.Listen(ctx, s.DataPort)
	if err != nil {
		return nil, err
	}
	defer dl.Close()

	cc, err := c.DialControl(ctx, s)
	if err != nil {
		return nil, err
	}
	defer cc.Close()

	if s.ClientAddress == "" {
		addr, err := c.LocalAddress(ctx, cc)
		if err != nil {
			return nil, err
		}
		s.ClientAddress = addr
	}
	logger.Debug("client address resolved", zap.String("addr", s.ClientAddress))

	g, gctx := errgroup.WithContext(ctx)
	received := make(chan string, 1)
	g.Go(func() error {
		_, err := cc.Negotiate(gctx, s)
		return err
	})
	g.Go(func() error {
		p, err := dl.AwaitPayload(gctx)
		if err != nil {
			return err
		}
		received <- p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	payload := <-received

	if err := cc.Close(); err != nil {
		logger.Debug("closing control connection", zap.Error(err))
	}

	res, err := c.Apply(Resolve(s.Command, s.Filename, payload))
	if err != nil {
		return nil, err
	}
	logger.Info("transfer complete", zap.Stringer("action", res.Action.Kind), zap.Int("bytes", res.Bytes))
	return res, nil
}

// List fetches and prints the server's directory listing.
func (c *Client) List(ctx context.Context, host string, port, dataPort int) (*Result, error) {
	s, err := NewSession(host, port, List, "", dataPort)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, s)
}

// Get fetches a remote file and writes it to a uniquely named local file.
// If the server does not have the file, the result reports NotFound and
// nothing is written.
func (c *Client) Get(ctx context.Context, host string, port int, filename string, dataPort int) (*Result, error) {
	s, err := NewSession(host, port, Get, filename, dataPort)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, s)
}
