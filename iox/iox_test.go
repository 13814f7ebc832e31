package iox

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type spyCloser struct {
	closed bool
	err    error
}

func (s *spyCloser) Close() error { s.closed = true; return s.err }

type spyBody struct {
	io.Reader
	spyCloser
}

func TestDrainClose(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", 1024))
	body := &spyBody{Reader: r}

	DrainClose(body)
	if !body.closed {
		t.Fatal("Close was not called")
	}
	if r.Len() != 0 {
		t.Errorf("expected body drained, %d bytes left", r.Len())
	}
}

func TestDrainClose_Bounded(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", maxDrain+100))
	body := &spyBody{Reader: r}

	DrainClose(body)
	if r.Len() != 100 {
		t.Errorf("expected drain to stop at %d bytes, %d left", maxDrain, r.Len())
	}
	if !body.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseAll(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	a := &spyCloser{err: errA}
	b := &spyCloser{}
	c := &spyCloser{err: errB}

	err := CloseAll(a, nil, b, c)
	if !a.closed || !b.closed || !c.closed {
		t.Fatal("every closer should be closed")
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected joined errors, got %v", err)
	}
	if err := CloseAll(&spyCloser{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
