// Package ipc implements the signer wire protocol: length-prefixed msgpack
// frames exchanged with a signer subprocess over stdio.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// Signer messages are small, so frames are capped well below what a
// general-purpose transport would allow; a peer announcing more than
// MaxPayloadSize is treated as out of sync.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	LengthPrefixSize = 4
	MaxPayloadSize   = 64 << 10
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	FrameErrorPartial FrameErrorKind = iota // truncated frame
	FrameErrorTooLarge
	FrameErrorDecode // payload is not a valid message
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too large"
	case FrameErrorDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FrameError is a framing or message decoding failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ipc frame (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("ipc frame (%s): %s", e.Kind, e.Msg)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream is out of sync. A decode error loses
// one message; partial and oversized frames lose the stream.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.IsFatal()
}

func tooLarge(n int) *FrameError {
	return &FrameError{
		Kind: FrameErrorTooLarge,
		Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", n, MaxPayloadSize),
	}
}

// FrameDecoder reads frames from a stream. Not safe for concurrent use.
type FrameDecoder struct {
	r   io.Reader
	hdr [LengthPrefixSize]byte
	buf []byte
}

func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// ReadFrame returns the next payload. The slice is reused and is only
// valid until the next call. A clean end of stream between frames is
// io.EOF; anything cut short is a fatal *FrameError.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	n := int(binary.BigEndian.Uint32(d.hdr[:]))
	if n > MaxPayloadSize {
		return nil, tooLarge(n)
	}
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	payload := d.buf[:n]
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// FrameEncoder writes frames to a stream. Not safe for concurrent use.
type FrameEncoder struct {
	w   io.Writer
	buf []byte
}

func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{w: w}
}

// WriteFrame writes the length prefix and payload in a single Write so a
// frame is never interleaved with another writer's output.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return tooLarge(len(payload))
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf[:0], uint32(len(payload)))
	e.buf = append(e.buf, payload...)
	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
