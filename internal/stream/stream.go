// Package stream provides the bounded read+seek abstraction every tier of
// the parsing stack consumes and produces: a plain file-backed stream, a
// checked sub-window over another stream, and a memory-mapped view with a
// buffered fallback.
package stream

import "io"

// Stream is a read+seek interface over bytes with a known length. Reads
// at or past the end return 0 bytes and io.EOF (never any other error);
// seeks outside [0, length] fail. Implementations never panic.
type Stream interface {
	io.Reader
	io.Seeker
	// Length reports the total number of bytes in the stream.
	Length() uint64
}

// ReadAll reads exactly n bytes of s from its current position, useful
// for small bounded reads (headers, directory records) where callers
// already know the size; fewer than n remaining bytes is an error.
func ReadAll(s Stream, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
