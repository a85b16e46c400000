package helpers

import "io"

// maxBodyBytes caps bodies read from upstream services and fetched documents.
const maxBodyBytes = 16 << 20

// ReadAllAndClose drains r (up to 16 MiB) and closes it.
func ReadAllAndClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}
