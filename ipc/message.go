package ipc

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Op names a signer operation.
type Op string

const (
	// OpProcessBatch reveals a slot range.
	OpProcessBatch Op = "process_batch"
	// OpFinalizeStory finalizes a story.
	OpFinalizeStory Op = "finalize_story"
)

// ErrorKind classifies a failed signer response.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindRangeTooLarge ErrorKind = "range_too_large"
	ErrorKindStoryNotReady ErrorKind = "story_not_ready"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindInvalid       ErrorKind = "invalid"
)

// Request is sent to the signer. Start and End are zero for finalize.
type Request struct {
	ID      uint64 `msgpack:"id"`
	Op      Op     `msgpack:"op"`
	StoryID string `msgpack:"story_id"`
	Start   int    `msgpack:"start,omitempty"`
	End     int    `msgpack:"end,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID        uint64    `msgpack:"id"`
	OK        bool      `msgpack:"ok"`
	TxHash    string    `msgpack:"tx_hash,omitempty"`
	Applied   bool      `msgpack:"applied"`
	ErrorKind ErrorKind `msgpack:"error_kind,omitempty"`
	Message   string    `msgpack:"message,omitempty"`
}

// WriteRequest encodes req as a single frame.
func (e *FrameEncoder) WriteRequest(req *Request) error {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode request", Err: err}
	}
	return e.WriteFrame(payload)
}

// WriteResponse encodes resp as a single frame.
func (e *FrameEncoder) WriteResponse(resp *Response) error {
	payload, err := msgpack.Marshal(resp)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode response", Err: err}
	}
	return e.WriteFrame(payload)
}

// ReadRequest reads and decodes one request frame.
func (d *FrameDecoder) ReadRequest() (*Request, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// ReadResponse reads and decodes one response frame.
func (d *FrameDecoder) ReadResponse() (*Response, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeResponse(payload)
}

// DecodeRequest decodes a payload as a Request.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode request",
			Err:  err,
		}
	}
	return &req, nil
}

// DecodeResponse decodes a payload as a Response.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode response",
			Err:  err,
		}
	}
	return &resp, nil
}
