package ftclient

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"
)

func FuzzDecodePayload(f *testing.F) {
	f.Add([]byte("hello\x00\x00\x00"))
	f.Add([]byte("a.txt\nb.txt\x00\x00"))
	f.Add([]byte("File not found."))
	f.Add([]byte{0xff, 0xfe})

	f.Fuzz(func(t *testing.T, raw []byte) {
		text, err := DecodePayload(raw)
		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("unexpected error type %T", err)
			}
			if utf8.Valid(raw) {
				t.Fatalf("valid input rejected at %d", de.Offset)
			}
			if de.Offset < 0 || de.Offset >= len(raw) {
				t.Fatalf("offset %d out of range for %d bytes", de.Offset, len(raw))
			}
			return
		}
		if strings.HasSuffix(text, "\x00") {
			t.Fatalf("trailing NUL survived: %q", text)
		}
		if !strings.HasPrefix(string(raw), text) {
			t.Fatalf("decoded text %q is not a prefix of the input", text)
		}
	})
}

func FuzzReadPayload(f *testing.F) {
	f.Add([]byte("a.txt\nb.txt"), 3)
	f.Add([]byte{}, 1)

	f.Fuzz(func(t *testing.T, raw []byte, chunk int) {
		if chunk <= 0 || chunk > 1<<16 {
			return
		}
		got, err := ReadPayload(iotest.OneByteReader(bytes.NewReader(raw)), chunk)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("reassembled %q, want %q", got, raw)
		}
	})
}
