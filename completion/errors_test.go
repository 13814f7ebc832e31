package completion_test

import (
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/types"
)

func TestTransient_KeepsMessageAndClass(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: connection refused")
	err := completion.Transient(cause)

	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), cause.Error())
	}
	if !errors.Is(err, completion.ErrTransient) {
		t.Error("expected errors.Is(err, ErrTransient)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to stay reachable")
	}

	var te *completion.TransientError
	if !errors.As(err, &te) || te.Err != cause {
		t.Errorf("errors.As = %v", te)
	}
}

func TestTransient_Nil(t *testing.T) {
	if err := completion.Transient(nil); err != nil {
		t.Errorf("Transient(nil) = %v, want nil", err)
	}
}

func TestStepError_TransientMessage(t *testing.T) {
	err := &completion.StepError{
		Kind:  completion.StepBatch,
		Index: 1,
		Range: types.SlotRange{Start: 51, End: 100},
		Err:   completion.Transient(io.ErrUnexpectedEOF),
	}
	if want := "batch 2 [51,100] failed: unexpected EOF"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, completion.ErrTransient) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("StepError should unwrap to both classes: %v", err)
	}
}
