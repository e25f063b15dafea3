package ftclient

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// NotFoundSentinel is sent in place of file contents when a Get names a file
// the server does not have. It is an in-band reply, not an error.
const NotFoundSentinel = "File not found."

// maxSuffix bounds the collision search in UniqueName.
const maxSuffix = 1 << 20

// ActionKind says what to do with a received payload.
type ActionKind int

const (
	// DisplayListing prints the payload as the remote directory listing.
	DisplayListing ActionKind = iota + 1

	// DisplaySentinel prints the not-found sentinel; no file is written.
	DisplaySentinel

	// Persist writes the payload to a new local file.
	Persist
)

// String returns a short name for the action kind.
func (k ActionKind) String() string {
	switch k {
	case DisplayListing:
		return "listing"
	case DisplaySentinel:
		return "not-found"
	case Persist:
		return "persist"
	default:
		return "unknown"
	}
}

// Action is the decision made about a payload.
type Action struct {
	Kind ActionKind

	// Text is the decoded payload
	Text string

	// Filename is the requested name; the written name may carry a suffix
	Filename string
}

// Resolve decides what to do with a fully received payload.
func Resolve(cmd Command, filename, payload string) Action {
	if cmd != Get {
		return Action{Kind: DisplayListing, Text: payload}
	}
	if payload == NotFoundSentinel {
		return Action{Kind: DisplaySentinel, Text: payload, Filename: filename}
	}
	return Action{Kind: Persist, Text: payload, Filename: filename}
}

// Result describes a completed session.
type Result struct {
	Action Action

	// Path is the name the payload was written to; empty unless persisted
	Path string

	// Bytes is the size of the decoded payload
	Bytes int
}

// NotFound reports whether the server answered a Get with the sentinel.
func (r *Result) NotFound() bool {
	return r.Action.Kind == DisplaySentinel
}

// Entries splits a directory listing into its non-empty lines.
func (r *Result) Entries() []string {
	if r.Action.Kind != DisplayListing {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(r.Action.Text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries
}

// Apply carries out an action: listings and the sentinel are printed to the
// client's output, file contents are written to a fresh local file.
func (c *Client) Apply(action Action) (*Result, error) {
	res := &Result{Action: action, Bytes: len(action.Text)}

	switch action.Kind {
	case DisplayListing, DisplaySentinel:
		if _, err := fmt.Fprintln(c.out, action.Text); err != nil {
			return nil, fmt.Errorf("failed to write output: %w", err)
		}
		return res, nil
	case Persist:
		path, err := persist(c.fs, action.Filename, []byte(action.Text))
		if err != nil {
			return nil, err
		}
		c.logger.Info("file saved", zap.String("path", path), zap.Int("bytes", res.Bytes))
		res.Path = path
		return res, nil
	default:
		return nil, fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

// UniqueName returns the name a fetch of name would be saved under right
// now: name if it is unused, otherwise name followed by the lowest positive
// integer that gives an unused name (name1, name2, ...). Apply follows the
// same order but claims the name atomically.
func UniqueName(fs afero.Fs, name string) (string, error) {
	for candidate := range candidates(name) {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", &PersistError{Path: candidate, Err: err}
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", exhausted(name)
}

// persist writes data under the lowest unused name derived from name.
// Names are claimed with an exclusive create, so a file that appears between
// the existence check and the write is skipped rather than overwritten.
func persist(fs afero.Fs, name string, data []byte) (string, error) {
	for candidate := range candidates(name) {
		f, err := fs.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", &PersistError{Path: candidate, Err: err}
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", &PersistError{Path: candidate, Err: err}
		}
		if err := f.Close(); err != nil {
			return "", &PersistError{Path: candidate, Err: err}
		}
		return candidate, nil
	}
	return "", exhausted(name)
}

// candidates yields name, name1, name2, ... up to maxSuffix.
func candidates(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; i <= maxSuffix; i++ {
			if !yield(suffixed(name, i)) {
				return
			}
		}
	}
}

func exhausted(name string) error {
	return &PersistError{Path: name, Err: fmt.Errorf("no unused name after %d attempts", maxSuffix)}
}

func suffixed(name string, n int) string {
	if n == 0 {
		return name
	}
	return name + strconv.Itoa(n)
}
