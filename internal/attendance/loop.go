package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// FrameSource yields probe images one at a time. Next returns io.EOF when the
// source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// FrameResult is the outcome of one live frame. Err holds a per-frame
// comparison failure; the loop continues after it.
type FrameResult struct {
	Frame   int      `json:"frame"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     error    `json:"-"`
}

// RunLive processes frames until the source is exhausted or ctx is cancelled.
// Cancellation is checked between frames only: a frame that has started is
// identified and recorded to completion. Ledger failures stop the loop, as
// does an error returned by fn.
func (e *Engine) RunLive(ctx context.Context, source FrameSource, session *Session, fn func(FrameResult) error) error {
	if session == nil {
		session = e.DefaultSession()
	}
	log := e.log.WithField("session", session.ID)
	frameCtx := context.WithoutCancel(ctx)

	for frame := 0; ; frame++ {
		if ctx.Err() != nil {
			log.WithField("frames", frame).Info("Live recognition stopped")
			return nil
		}

		probe, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.WithField("frames", frame).Info("Frame source exhausted")
			return nil
		}
		if ctx.Err() != nil {
			log.WithField("frames", frame).Info("Live recognition stopped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frame %d: %w", frame, err)
		}

		outcome, err := e.Process(frameCtx, session, probe)
		if errors.Is(err, ErrLedger) {
			if fn != nil {
				_ = fn(FrameResult{Frame: frame, Outcome: outcome, Err: err})
			}
			return err
		}
		if err != nil {
			log.WithError(err).WithField("frame", frame).Warn("Frame could not be identified")
		}

		if fn != nil {
			if err := fn(FrameResult{Frame: frame, Outcome: outcome, Err: err}); err != nil {
				return err
			}
		}
	}
}
