// Package attendance decides who is in a probe image and writes one ledger
// record per recognized person and dedupe window.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/sirupsen/logrus"
)

// ErrLedger marks ledger read or write failures. They abort the current
// operation and must be shown to the operator.
var ErrLedger = errors.New("attendance ledger failure")

// ErrNoHashStrategy is returned by Verify when no hash strategy is configured.
var ErrNoHashStrategy = errors.New("perceptual hash verification is not configured")

// EntrySource is the view of the identity store the engine needs.
type EntrySource interface {
	Entries() []identity.Entry
	Lookup(name string) (identity.Entry, bool)
}

// Recording statuses
const (
	RecordStatusRecorded  = "recorded"
	RecordStatusDuplicate = "duplicate"
	RecordStatusIgnored   = "ignored"
)

// Recording is the result of RecordAttendance.
type Recording struct {
	Name      string    `json:"name"`
	Time      time.Time `json:"time"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id"`
}

// Recorded reports whether a ledger row was written.
func (r *Recording) Recorded() bool {
	return r != nil && r.Status == RecordStatusRecorded
}

// Outcome is the identity decided for a probe image.
type Outcome struct {
	// Name is the best matched identity, or Unknown.
	Name       string               `json:"name"`
	Matched    bool                 `json:"matched"`
	Decisions  []facematch.Decision `json:"decisions"`
	Recordings []Recording          `json:"recordings,omitempty"`
}

// MatchedNames returns the distinct matched names in decision order.
func (o *Outcome) MatchedNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, d := range o.Decisions {
		if d.Matched && !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	return names
}

// Option configures an Engine.
type Option func(*Engine)

// WithDedupe selects config.DedupeSession (default) or config.DedupeLedger.
func WithDedupe(policy string) Option {
	return func(e *Engine) { e.dedupe = policy }
}

// WithSameDay limits the ledger dedupe policy to records of the current day.
func WithSameDay(sameDay bool) Option {
	return func(e *Engine) { e.sameDay = sameDay }
}

// WithHashStrategy enables Verify.
func WithHashStrategy(h *facematch.HashStrategy) Option {
	return func(e *Engine) { e.hash = h }
}

// WithWriteRetries sets how many times a failed append is retried.
func WithWriteRetries(n int) Option {
	return func(e *Engine) { e.retries = n }
}

// WithRetryInterval sets the first backoff interval between append retries.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) { e.retryInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithPublisher sends an event after every recorded attendance.
func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine combines the identity store, a matching strategy and the ledger.
type Engine struct {
	store         EntrySource
	strategy      facematch.Strategy
	hash          *facematch.HashStrategy
	ledger        database.Ledger
	dedupe        string
	sameDay       bool
	retries       int
	retryInterval time.Duration
	now           func() time.Time
	log           logrus.FieldLogger
	publisher     notify.Publisher
	metrics       *metrics.Metrics

	// mu makes the dedupe check and the append one step.
	mu             sync.Mutex
	defaultSession *Session
}

// NewEngine creates an engine. Without options it dedupes per session and
// retries failed appends constants.DefaultLedgerWriteRetries times.
func NewEngine(store EntrySource, strategy facematch.Strategy, ledger database.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		strategy:      strategy,
		ledger:        ledger,
		dedupe:        config.DedupeSession,
		retries:       constants.DefaultLedgerWriteRetries,
		retryInterval: 100 * time.Millisecond,
		now:           time.Now,
		log:           logrus.StandardLogger(),
		publisher:     notify.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "engine")
	e.defaultSession = NewSession(e.now())
	return e
}

// StrategyName returns the configured matching strategy.
func (e *Engine) StrategyName() string {
	return e.strategy.Name()
}

// DedupePolicy returns the configured dedupe policy.
func (e *Engine) DedupePolicy() string {
	return e.dedupe
}

// SameDay reports whether the ledger policy is limited to the current day.
func (e *Engine) SameDay() bool {
	return e.sameDay
}

// DefaultSession returns the process-lifetime session used when callers pass nil.
func (e *Engine) DefaultSession() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defaultSession
}

// Identify decides the identities in a probe image. It never returns a name
// outside the store. A probe without faces is Unknown, not an error.
func (e *Engine) Identify(ctx context.Context, probe []byte) (*Outcome, error) {
	start := time.Now()
	decisions, err := e.strategy.Identify(ctx, probe, e.store.Entries())
	e.metrics.IdentifyDuration(time.Since(start))
	if err != nil {
		e.metrics.Identification(metrics.ResultError)
		return nil, err
	}

	outcome := &Outcome{Name: facematch.Unknown, Decisions: decisions}
	if len(decisions) == 0 {
		e.metrics.Identification(metrics.ResultNoFace)
	}
	best := -1
	for i, d := range decisions {
		if !d.Matched {
			e.metrics.Identification(metrics.ResultUnknown)
			continue
		}
		e.metrics.Identification(metrics.ResultMatched)
		if best < 0 || d.Distance < decisions[best].Distance {
			best = i
		}
	}
	if best >= 0 {
		outcome.Name = decisions[best].Name
		outcome.Matched = true
	}
	return outcome, nil
}

// Verify checks a probe against one named identity by perceptual hash.
func (e *Engine) Verify(ctx context.Context, name string, probe []byte) (*Outcome, error) {
	if e.hash == nil {
		return nil, ErrNoHashStrategy
	}
	entry, ok := e.store.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", identity.ErrNotFound, name)
	}
	d, err := e.hash.Compare(probe, entry)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Name: d.Name, Matched: d.Matched, Decisions: []facematch.Decision{d}}
	if d.Matched {
		e.metrics.Identification(metrics.ResultMatched)
	} else {
		e.metrics.Identification(metrics.ResultUnknown)
	}
	return outcome, nil
}

// RecordAttendance appends {name, now, Present} unless the dedupe policy has
// already seen the name. Unknown and empty names are never recorded. A nil
// session means the engine's default session.
func (e *Engine) RecordAttendance(ctx context.Context, session *Session, name string) (*Recording, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if session == nil {
		session = e.defaultSession
	}
	now := e.now()
	rec := &Recording{Name: name, Time: now, SessionID: session.ID}

	if name == "" || name == facematch.Unknown {
		rec.Status = RecordStatusIgnored
		return rec, nil
	}

	log := e.log.WithFields(logrus.Fields{"name": name, "session": session.ID})

	duplicate, err := e.alreadyRecorded(ctx, session, name, now)
	if err != nil {
		e.metrics.Record(metrics.OutcomeFailed)
		return nil, err
	}
	if duplicate {
		e.metrics.Record(metrics.OutcomeDuplicate)
		log.Debug("Attendance already recorded")
		rec.Status = RecordStatusDuplicate
		return rec, nil
	}

	row := database.AttendanceRecord{Name: name, Time: now, Status: database.StatusPresent}
	if err := e.appendWithRetry(ctx, row); err != nil {
		e.metrics.Record(metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	session.mark(name, now)
	e.metrics.Record(metrics.OutcomeRecorded)
	log.Info("Attendance recorded")

	event := notify.Event{
		Type:      notify.EventAttendanceRecorded,
		Name:      name,
		Time:      now,
		Status:    string(database.StatusPresent),
		SessionID: session.ID,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to publish attendance event")
	}

	rec.Status = RecordStatusRecorded
	return rec, nil
}

// alreadyRecorded applies the dedupe policy. Callers hold e.mu.
func (e *Engine) alreadyRecorded(ctx context.Context, session *Session, name string, now time.Time) (bool, error) {
	if e.dedupe != config.DedupeLedger {
		return session.Seen(name), nil
	}
	last, err := e.ledger.LastRecord(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	if last == nil {
		return false, nil
	}
	return !e.sameDay || last.SameDay(now), nil
}

func (e *Engine) appendWithRetry(ctx context.Context, row database.AttendanceRecord) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.retryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(e.retries, 0))), ctx)

	return backoff.RetryNotify(func() error {
		return e.ledger.Append(ctx, row)
	}, b, func(err error, wait time.Duration) {
		e.metrics.LedgerRetry()
		e.log.WithError(err).WithField("retry_in", wait).Warn("Ledger append failed, retrying")
	})
}

// Process identifies a probe and records every matched face.
// On a ledger failure the outcome so far is returned with the error.
func (e *Engine) Process(ctx context.Context, session *Session, probe []byte) (*Outcome, error) {
	outcome, err := e.Identify(ctx, probe)
	if err != nil {
		return nil, err
	}
	for _, name := range outcome.MatchedNames() {
		rec, err := e.RecordAttendance(ctx, session, name)
		if err != nil {
			return outcome, err
		}
		outcome.Recordings = append(outcome.Recordings, *rec)
	}
	return outcome, nil
}

// Ledger returns the records newest first, at most limit when limit > 0.
func (e *Engine) Ledger(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	records, err := e.ledger.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	out := make([]database.AttendanceRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
