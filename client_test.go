package ftclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftclient/internal/testserver"
)

func TestLocalAddress_Override(t *testing.T) {
	t.Parallel()
	c, err := New(WithClientAddress("10.1.2.3"))
	require.NoError(t, err)

	addr, err := c.LocalAddress(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", addr)
}

func TestLocalAddress_RouteProbe(t *testing.T) {
	t.Parallel()
	// Connecting a UDP socket to loopback needs no network and sends nothing.
	c, err := New(WithRouteProbe("127.0.0.1:9"))
	require.NoError(t, err)

	addr, err := c.LocalAddress(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr)
}

func TestLocalAddress_FallbackToControl(t *testing.T) {
	t.Parallel()
	srv := testserver.Start(t, testserver.WithoutConnectBack())

	c, err := New()
	require.NoError(t, err)

	s, err := NewSession("127.0.0.1", srv.Port(), List, "", 5001)
	require.NoError(t, err)
	cc, err := c.DialControl(context.Background(), s)
	require.NoError(t, err)
	defer cc.Close()

	// A cancelled context makes the route probe fail without touching the
	// network, leaving only the control connection.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	addr, err := c.LocalAddress(ctx, cc)
	require.NoError(t, err)
	assert.NotNil(t, net.ParseIP(addr))
	assert.Equal(t, "127.0.0.1", addr)

	_, err = c.LocalAddress(ctx, nil)
	assert.Error(t, err)
}
