// Package iox provides cleanup helpers shared by the HTTP clients, the
// CLI wiring and tests.
package iox

import (
	"errors"
	"io"
)

// maxDrain bounds how much of an unread response body DrainClose consumes
// before giving up on connection reuse.
const maxDrain = 64 << 10

// DrainClose reads and discards up to 64 KiB of rc, then closes it, so an
// HTTP response body returns its connection to the pool:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, maxDrain))
	_ = rc.Close()
}

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(gw))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseAll closes every non-nil closer in order and joins their errors.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
