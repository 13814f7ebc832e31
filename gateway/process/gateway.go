// Package process implements completion.Gateway over a signer subprocess.
//
// The signer owns keys and chain access. Ghostwriter writes one ipc.Request
// frame per call to the signer's stdin and reads the matching ipc.Response
// frame from its stdout. Calls are serialized; there is at most one request
// in flight.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/ipc"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// Gateway is a completion.Gateway backed by a framed stdio transport.
type Gateway struct {
	mu     sync.Mutex
	enc    *ipc.FrameEncoder
	dec    *ipc.FrameDecoder
	r      io.ReadCloser
	w      io.WriteCloser
	nextID uint64
	broken error
	logger *log.Logger

	signer *signer // nil when built with New
}

var _ completion.Gateway = (*Gateway)(nil)

// New creates a gateway over an established transport: responses are read
// from r and requests written to w. Close closes both.
func New(r io.ReadCloser, w io.WriteCloser, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gateway{
		enc:    ipc.NewFrameEncoder(w),
		dec:    ipc.NewFrameDecoder(r),
		r:      r,
		w:      w,
		logger: logger,
	}
}

// ProcessCompletionBatch implements completion.Gateway.
func (g *Gateway) ProcessCompletionBatch(ctx context.Context, storyID types.StoryID, r types.SlotRange) (completion.Receipt, error) {
	return g.call(ctx, &ipc.Request{
		Op:      ipc.OpProcessBatch,
		StoryID: string(storyID),
		Start:   r.Start,
		End:     r.End,
	})
}

// FinalizeStory implements completion.Gateway.
func (g *Gateway) FinalizeStory(ctx context.Context, storyID types.StoryID) (completion.Receipt, error) {
	return g.call(ctx, &ipc.Request{Op: ipc.OpFinalizeStory, StoryID: string(storyID)})
}

type readResult struct {
	resp *ipc.Response
	err  error
}

func (g *Gateway) call(ctx context.Context, req *ipc.Request) (completion.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.broken != nil {
		return completion.Receipt{}, completion.Transient(fmt.Errorf("signer unavailable: %v", g.broken))
	}
	if err := ctx.Err(); err != nil {
		return completion.Receipt{}, err
	}

	g.nextID++
	req.ID = g.nextID

	if err := g.enc.WriteRequest(req); err != nil {
		g.breakLocked(err)
		return completion.Receipt{}, completion.Transient(err)
	}

	ch := make(chan readResult, 1)
	go func() {
		resp, err := g.dec.ReadResponse()
		ch <- readResult{resp: resp, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		// The response may still arrive; the stream can no longer be
		// correlated, so the transport is torn down.
		g.breakLocked(ctx.Err())
		<-ch
		return completion.Receipt{}, ctx.Err()
	case res = <-ch:
	}

	if res.err != nil {
		if errors.Is(res.err, io.EOF) {
			res.err = errors.New("signer closed stdout")
		}
		g.breakLocked(res.err)
		return completion.Receipt{}, completion.Transient(res.err)
	}
	if res.resp.ID != req.ID {
		err := fmt.Errorf("response id %d does not match request id %d", res.resp.ID, req.ID)
		g.breakLocked(err)
		return completion.Receipt{}, completion.Transient(err)
	}

	if !res.resp.OK {
		return completion.Receipt{}, responseError(res.resp)
	}
	return completion.Receipt{TxHash: res.resp.TxHash, Applied: res.resp.Applied}, nil
}

// breakLocked marks the transport unusable and closes it. Caller holds g.mu.
func (g *Gateway) breakLocked(cause error) {
	if g.broken != nil {
		return
	}
	g.broken = cause
	g.logger.Warn("signer transport broken", map[string]any{"error": cause.Error()})
	_ = g.w.Close()
	_ = g.r.Close()
	if g.signer != nil {
		_ = g.signer.kill()
	}
}

// RemoteError is a failure reported by the signer. Error returns the
// signer's message verbatim; Unwrap exposes the completion error class.
type RemoteError struct {
	Kind    ipc.ErrorKind
	Message string
	class   error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("signer rejected request (%s)", e.Kind)
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.class
}

// responseError maps a failed response onto the completion error classes.
func responseError(resp *ipc.Response) error {
	remote := &RemoteError{Kind: resp.ErrorKind, Message: resp.Message}
	switch resp.ErrorKind {
	case ipc.ErrorKindRangeTooLarge:
		remote.class = completion.ErrRangeTooLarge
	case ipc.ErrorKindStoryNotReady:
		remote.class = completion.ErrStoryNotReady
	case ipc.ErrorKindTransient:
		remote.class = completion.ErrTransient
	}
	return remote
}

// errorKind classifies a gateway error for the wire.
func errorKind(err error) ipc.ErrorKind {
	switch {
	case errors.Is(err, completion.ErrRangeTooLarge):
		return ipc.ErrorKindRangeTooLarge
	case errors.Is(err, completion.ErrStoryNotReady):
		return ipc.ErrorKindStoryNotReady
	case errors.Is(err, completion.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return ipc.ErrorKindTransient
	default:
		return ipc.ErrorKindInvalid
	}
}

// Close shuts the transport down. For a started signer it closes stdin and
// waits for the process to exit.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.signer != nil {
		// Closing stdin is the shutdown signal; stdout drains on exit.
		_ = g.w.Close()
		err := g.signer.wait()
		if g.broken == nil {
			g.broken = errors.New("gateway closed")
		}
		return err
	}

	if g.broken == nil {
		g.broken = errors.New("gateway closed")
	}
	werr := g.w.Close()
	rerr := g.r.Close()
	return errors.Join(werr, rerr)
}
