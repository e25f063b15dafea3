package ftclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    Command
		wantErr bool
	}{
		{"-l", List, false},
		{"-g", Get, false},
		{"-x", 0, true},
		{"l", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if tt.wantErr {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
				assert.Equal(t, "command", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		host      string
		port      int
		cmd       Command
		filename  string
		dataPort  int
		wantField string
	}{
		{name: "valid list", host: "localhost", port: 5000, cmd: List, dataPort: 5001},
		{name: "valid get", host: "localhost", port: 5000, cmd: Get, filename: "x.txt", dataPort: 5001},
		{name: "bounds", host: "h", port: MinPort, cmd: List, dataPort: MaxPort},
		{name: "empty host", host: " ", port: 5000, cmd: List, dataPort: 5001, wantField: "host"},
		{name: "privileged control port", host: "h", port: 21, cmd: List, dataPort: 5001, wantField: "port"},
		{name: "control port too high", host: "h", port: 65536, cmd: List, dataPort: 5001, wantField: "port"},
		{name: "data port too low", host: "h", port: 5000, cmd: List, dataPort: 1023, wantField: "data_port"},
		{name: "get without filename", host: "h", port: 5000, cmd: Get, dataPort: 5001, wantField: "filename"},
		{name: "list with filename", host: "h", port: 5000, cmd: List, filename: "x", dataPort: 5001, wantField: "filename"},
		{name: "unknown command", host: "h", port: 5000, cmd: Command(9), dataPort: 5001, wantField: "command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(tt.host, tt.port, tt.cmd, tt.filename, tt.dataPort)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, s.ID)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Nil(t, s)
		})
	}
}

func TestSession_Messages(t *testing.T) {
	t.Parallel()

	list, err := NewSession("localhost", 5000, List, "", 5001)
	require.NoError(t, err)
	list.ClientAddress = "10.0.0.7"
	assert.Equal(t, []HandshakeStep{
		{Name: "command", Payload: "-l"},
		{Name: "data port", Payload: "5001"},
		{Name: "client address", Payload: "10.0.0.7"},
	}, list.Messages())

	get, err := NewSession("localhost", 5000, Get, "report.txt", 30020)
	require.NoError(t, err)
	get.ClientAddress = "10.0.0.7"
	msgs := get.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "-g", msgs[0].Payload)
	assert.Equal(t, "30020", msgs[1].Payload)
	assert.Equal(t, "report.txt", msgs[3].Payload)
}

func TestNewSession_UniqueIDs(t *testing.T) {
	t.Parallel()
	a, err := NewSession("h", 5000, List, "", 5001)
	require.NoError(t, err)
	b, err := NewSession("h", 5000, List, "", 5001)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
