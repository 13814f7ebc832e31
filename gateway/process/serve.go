package process

import (
	"context"
	"errors"
	"io"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/ipc"
	"github.com/pithecene-io/ghostwriter/log"
	"github.com/pithecene-io/ghostwriter/types"
)

// Serve is the signer side of the protocol: it reads requests from r,
// applies them to gw and writes responses to w until r reaches EOF or ctx
// is canceled. It returns nil on a clean EOF.
//
// A frame that cannot be decoded is answered with ErrorKindInvalid and
// skipped; a partial or oversized frame ends the session.
func Serve(ctx context.Context, r io.Reader, w io.Writer, gw completion.Gateway, logger *log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}
	dec := ipc.NewFrameDecoder(r)
	enc := ipc.NewFrameEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := dec.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ipc.IsFatalFrameError(err) {
				return err
			}
			logger.Warn("undecodable request", map[string]any{"error": err.Error()})
			if werr := enc.WriteResponse(&ipc.Response{ErrorKind: ipc.ErrorKindInvalid, Message: err.Error()}); werr != nil {
				return werr
			}
			continue
		}

		resp := handle(ctx, gw, req)
		if !resp.OK {
			logger.Debug("request failed", map[string]any{
				"id":         req.ID,
				"op":         string(req.Op),
				"story_id":   req.StoryID,
				"error_kind": string(resp.ErrorKind),
			})
		}
		if err := enc.WriteResponse(resp); err != nil {
			return err
		}
	}
}

func handle(ctx context.Context, gw completion.Gateway, req *ipc.Request) *ipc.Response {
	var (
		receipt completion.Receipt
		err     error
	)
	storyID := types.StoryID(req.StoryID)

	switch req.Op {
	case ipc.OpProcessBatch:
		receipt, err = gw.ProcessCompletionBatch(ctx, storyID, types.SlotRange{Start: req.Start, End: req.End})
	case ipc.OpFinalizeStory:
		receipt, err = gw.FinalizeStory(ctx, storyID)
	default:
		return &ipc.Response{ID: req.ID, ErrorKind: ipc.ErrorKindInvalid, Message: "unknown op " + string(req.Op)}
	}

	if err != nil {
		return &ipc.Response{ID: req.ID, ErrorKind: errorKind(err), Message: err.Error()}
	}
	return &ipc.Response{ID: req.ID, OK: true, TxHash: receipt.TxHash, Applied: receipt.Applied}
}
