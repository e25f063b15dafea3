package ftclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftclient/internal/testserver"
)

// partitionReader returns the stream in pseudo-random piece sizes.
type partitionReader struct {
	data []byte
	rng  *rand.Rand
}

func (p *partitionReader) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := 1 + p.rng.Intn(len(b))
	n = min(n, len(p.data))
	copy(b, p.data[:n])
	p.data = p.data[n:]
	return n, nil
}

func TestReadPayload_PartitionInvariant(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	for i := range 500 {
		sb.WriteString("entry-" + strconv.Itoa(i) + ".txt\n")
	}
	want := []byte(sb.String())

	readers := map[string]func() io.Reader{
		"whole":    func() io.Reader { return bytes.NewReader(want) },
		"one byte": func() io.Reader { return iotest.OneByteReader(bytes.NewReader(want)) },
		"half":     func() io.Reader { return iotest.HalfReader(bytes.NewReader(want)) },
		"data+eof": func() io.Reader { return iotest.DataErrReader(bytes.NewReader(want)) },
		"random":   func() io.Reader { return &partitionReader{data: want, rng: rand.New(rand.NewSource(42))} },
	}

	for name, mk := range readers {
		for _, chunk := range []int{1, 7, DefaultChunkSize, 64 * 1024} {
			t.Run(name+"/"+strconv.Itoa(chunk), func(t *testing.T) {
				got, err := ReadPayload(mk(), chunk)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})
		}
	}
}

type stuckReader struct{}

func (stuckReader) Read([]byte) (int, error) { return 0, nil }

func TestReadPayload_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadPayload(stuckReader{}, 0)
	assert.ErrorIs(t, err, io.ErrNoProgress)

	got, err := ReadPayload(iotest.TimeoutReader(strings.NewReader("partial")), 4)
	assert.ErrorIs(t, err, iotest.ErrTimeout)
	assert.Equal(t, "part", string(got))
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		raw        []byte
		want       string
		wantOffset int
	}{
		{name: "trailing padding", raw: []byte("hello\x00\x00\x00"), want: "hello", wantOffset: -1},
		{name: "listing", raw: []byte("a.txt\nb.txt\x00\x00"), want: "a.txt\nb.txt", wantOffset: -1},
		{name: "interior nul kept", raw: []byte("a\x00b\x00"), want: "a\x00b", wantOffset: -1},
		{name: "empty", raw: nil, want: "", wantOffset: -1},
		{name: "only padding", raw: []byte{0, 0}, want: "", wantOffset: -1},
		{name: "multibyte", raw: []byte("héllo\x00"), want: "héllo", wantOffset: -1},
		{name: "invalid byte", raw: []byte{'o', 'k', 0xff, 'x'}, wantOffset: 2},
		{name: "truncated rune", raw: []byte{'a', 0xc3}, wantOffset: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.raw)
			if tt.wantOffset >= 0 {
				var de *DecodeError
				require.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
				assert.Equal(t, tt.wantOffset, de.Offset)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// sendTo dials the data port and writes payload in pieces of size chunk.
func sendTo(t *testing.T, port int, payload []byte, chunk int) {
	t.Helper()
	go func() {
		var conn net.Conn
		var err error
		for range 50 {
			conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
			if err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			return
		}
		defer conn.Close()
		for len(payload) > 0 {
			n := min(chunk, len(payload))
			if _, err := conn.Write(payload[:n]); err != nil {
				return
			}
			payload = payload[n:]
		}
	}()
}

func TestAwaitPayload(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	port := testserver.FreePort(t)
	dl, err := c.Listen(context.Background(), port)
	require.NoError(t, err)
	assert.Equal(t, port, dl.Port())

	sendTo(t, port, []byte("a.txt\nb.txt\x00\x00"), 3)

	got, err := dl.AwaitPayload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.txt\nb.txt", got)

	// The listener is gone once the payload has been received.
	_, err = net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	assert.Error(t, err)
	assert.NoError(t, dl.Close(), "Close after AwaitPayload must be a no-op")
}

func TestAwaitPayload_DecodeError(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	port := testserver.FreePort(t)
	dl, err := c.Listen(context.Background(), port)
	require.NoError(t, err)

	sendTo(t, port, []byte{0xfe, 0xff}, 1024)

	_, err = dl.AwaitPayload(context.Background())
	var de *DecodeError
	assert.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
}

func TestAwaitPayload_AcceptTimeout(t *testing.T) {
	t.Parallel()
	c, err := New(WithAcceptTimeout(100 * time.Millisecond))
	require.NoError(t, err)

	dl, err := c.Listen(context.Background(), testserver.FreePort(t))
	require.NoError(t, err)

	start := time.Now()
	_, err = dl.AwaitPayload(context.Background())
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected TimeoutError, got %v", err)
	assert.Equal(t, "accept", te.Op)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitPayload_Cancel(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	dl, err := c.Listen(context.Background(), testserver.FreePort(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = dl.AwaitPayload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitPayload_ProgressAndBandwidth(t *testing.T) {
	t.Parallel()
	var last atomic.Int64
	c, err := New(
		WithBandwidthLimit(4096),
		WithProgress(func(n int64) { last.Store(n) }),
	)
	require.NoError(t, err)

	port := testserver.FreePort(t)
	dl, err := c.Listen(context.Background(), port)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 8192)
	sendTo(t, port, payload, 8192)

	start := time.Now()
	got, err := dl.AwaitPayload(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, len(payload))
	assert.Equal(t, int64(len(payload)), last.Load())
	// The first 4KiB fit in the burst; the rest needs about a second.
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestListen_Errors(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	_, err = c.Listen(context.Background(), 80)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	_, err = c.Listen(context.Background(), port)
	var le *ListenError
	require.True(t, errors.As(err, &le), "expected ListenError, got %v", err)
	assert.Equal(t, port, le.Port)
}
