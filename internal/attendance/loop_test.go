package attendance

import (
	"context"
	"errors"
	"io"
	"testing"
)

type sliceSource struct {
	frames [][]byte
	next   int
	err    error
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func TestRunLive_ProcessesUntilExhausted(t *testing.T) {
	f := newFixture(t)
	alice := f.probe(100, []float32{0, 0})
	stranger := f.probe(101, []float32{9, 9})
	source := &sliceSource{frames: [][]byte{alice, stranger, alice, alice}}

	var results []FrameResult
	err := f.engine.RunLive(context.Background(), source, nil, func(r FrameResult) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		t.Fatalf("RunLive() error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if results[1].Outcome.Name != "Unknown" {
		t.Errorf("frame 1 = %q, want Unknown", results[1].Outcome.Name)
	}
	if n := len(ledgerNames(t, f.ledger)); n != 1 {
		t.Errorf("ledger rows = %d, want 1 for the whole live session", n)
	}
}

func TestRunLive_StopsBetweenFrames(t *testing.T) {
	f := newFixture(t)
	alice := f.probe(100, []float32{0, 0})
	source := &sliceSource{frames: [][]byte{alice, alice, alice}}

	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	err := f.engine.RunLive(ctx, source, NewSession(f.engine.now()), func(r FrameResult) error {
		frames++
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("RunLive() error: %v", err)
	}
	if frames != 1 {
		t.Errorf("processed %d frames after stop, want 1", frames)
	}
	if n := len(ledgerNames(t, f.ledger)); n != 1 {
		t.Errorf("ledger rows = %d, the started frame must complete", n)
	}
}

func TestRunLive_Errors(t *testing.T) {
	t.Run("source failure", func(t *testing.T) {
		f := newFixture(t)
		source := &sliceSource{err: errors.New("camera disconnected")}
		if err := f.engine.RunLive(context.Background(), source, nil, nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("ledger failure stops the loop", func(t *testing.T) {
		f := newFixture(t, WithWriteRetries(0))
		f.ledger.AppendError = errors.New("disk full")
		alice := f.probe(100, []float32{0, 0})
		source := &sliceSource{frames: [][]byte{alice, alice}}

		var results []FrameResult
		err := f.engine.RunLive(context.Background(), source, nil, func(r FrameResult) error {
			results = append(results, r)
			return nil
		})
		if !errors.Is(err, ErrLedger) {
			t.Fatalf("error = %v, want ErrLedger", err)
		}
		if len(results) != 1 || !errors.Is(results[0].Err, ErrLedger) {
			t.Errorf("results = %+v, want the failing frame reported", results)
		}
	})

	t.Run("callback error stops the loop", func(t *testing.T) {
		f := newFixture(t)
		alice := f.probe(100, []float32{0, 0})
		source := &sliceSource{frames: [][]byte{alice, alice}}
		stop := errors.New("client went away")
		err := f.engine.RunLive(context.Background(), source, nil, func(FrameResult) error { return stop })
		if !errors.Is(err, stop) {
			t.Errorf("error = %v, want callback error", err)
		}
	})
}
