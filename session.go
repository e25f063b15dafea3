package ftclient

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Port bounds accepted for both the control and data ports.
const (
	MinPort = 1024
	MaxPort = 65535
)

// Command is the operation requested from the server.
type Command int

const (
	// List asks the server for its directory listing ("-l").
	List Command = iota + 1

	// Get asks the server for the contents of a file ("-g").
	Get
)

// String returns the command as it is sent on the wire.
func (c Command) String() string {
	switch c {
	case List:
		return "-l"
	case Get:
		return "-g"
	default:
		return "command(" + strconv.Itoa(int(c)) + ")"
	}
}

// ParseCommand parses a wire flag ("-l" or "-g") into a Command.
func ParseCommand(s string) (Command, error) {
	switch s {
	case "-l":
		return List, nil
	case "-g":
		return Get, nil
	}
	return 0, &ValidationError{
		Field:  "command",
		Value:  s,
		Reason: "the only commands accepted are -g or -l",
	}
}

// Session is the state of one handshake and transfer.
// It is built from validated inputs and discarded once the transfer ends.
type Session struct {
	// ID correlates the log lines of one session
	ID string

	Host        string
	ControlPort int
	Command     Command

	// Filename is the remote file to fetch; set only for Get
	Filename string

	// DataPort is the local port the server connects back to
	DataPort int

	// ClientAddress is this host's routable IP, sent to the server so it
	// can open the data connection. Filled in before negotiation.
	ClientAddress string
}

// NewSession validates the inputs and returns a session ready for Run.
//
// Example:
//
//	s, err := ftclient.NewSession("flip1.example.edu", 30021, ftclient.Get, "notes.txt", 30020)
func NewSession(host string, controlPort int, cmd Command, filename string, dataPort int) (*Session, error) {
	s := &Session{
		ID:          uuid.NewString(),
		Host:        host,
		ControlPort: controlPort,
		Command:     cmd,
		Filename:    filename,
		DataPort:    dataPort,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the session fields against the protocol's constraints.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return &ValidationError{Field: "host", Reason: "host is required"}
	}
	if err := validatePort("port", s.ControlPort); err != nil {
		return err
	}
	if err := validatePort("data_port", s.DataPort); err != nil {
		return err
	}

	switch s.Command {
	case List:
		if s.Filename != "" {
			return &ValidationError{Field: "filename", Value: s.Filename, Reason: "not allowed with -l"}
		}
	case Get:
		if s.Filename == "" {
			return &ValidationError{Field: "filename", Reason: "required with -g"}
		}
	default:
		return &ValidationError{Field: "command", Value: s.Command.String(), Reason: "the only commands accepted are -g or -l"}
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < MinPort || port > MaxPort {
		return &ValidationError{
			Field:  field,
			Value:  strconv.Itoa(port),
			Reason: "must be between " + strconv.Itoa(MinPort) + " and " + strconv.Itoa(MaxPort),
		}
	}
	return nil
}

// HandshakeStep is one control-channel message and the name used to report it.
type HandshakeStep struct {
	Name    string
	Payload string
}

// Messages returns the handshake messages in wire order: command, data port,
// client address and, for Get, the filename.
func (s *Session) Messages() []HandshakeStep {
	steps := []HandshakeStep{
		{Name: "command", Payload: s.Command.String()},
		{Name: "data port", Payload: strconv.Itoa(s.DataPort)},
		{Name: "client address", Payload: s.ClientAddress},
	}
	if s.Command == Get {
		steps = append(steps, HandshakeStep{Name: "filename", Payload: s.Filename})
	}
	return steps
}
