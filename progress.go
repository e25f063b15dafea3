package ftclient

import "io"

// progressReader wraps the data connection and reports the running total of
// received bytes via a callback.
type progressReader struct {
	r        io.Reader
	callback func(bytesTransferred int64)
	total    int64
}

// withProgress wraps r when a callback is configured.
func withProgress(r io.Reader, callback func(int64)) io.Reader {
	if callback == nil {
		return r
	}
	return &progressReader{r: r, callback: callback}
}

// Read implements io.Reader.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.total += int64(n)
		pr.callback(pr.total)
	}
	return n, err
}
