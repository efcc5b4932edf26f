// Package fetch retrieves image bytes from a remote URL into a single
// pre-sized buffer. Responses without a declared length are refused: the
// device cannot afford unbounded buffering.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// chunkSize is how many body bytes are read per call while filling the buffer
const chunkSize = 1024

// MaxSize caps the declared length the fetcher will allocate, matching the
// upload limit on the serving side.
const MaxSize = 8 << 20

var (
	ErrMissingLength = errors.New("fetch: response has no usable Content-Length")
	ErrShort         = errors.New("fetch: connection closed before declared length")
	ErrTooLarge      = errors.New("fetch: declared length exceeds limit")
)

// Fetch downloads url and returns the body as one fully materialized buffer,
// allocated once at the declared Content-Length. The response body is closed
// before returning.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid URL %q: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: %s returned status %d", url, resp.StatusCode)
	}

	length := resp.ContentLength
	if length <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrMissingLength, length)
	}
	if length > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
	}

	// Single allocation sized up front; the buffer never grows
	buf := make([]byte, length)

	offset := 0
	for offset < len(buf) {
		n := offset + chunkSize
		if n > len(buf) {
			n = len(buf)
		}

		read, err := resp.Body.Read(buf[offset:n])
		offset += read

		// An unexpected EOF is a short body, reported as ErrShort below
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch: read failed after %d/%d bytes: %w", offset, length, err)
		}
	}

	if offset < len(buf) {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShort, offset, length)
	}

	return buf, nil
}
