// Package conversation implements the conversation state machine: it owns
// the turn sequence and the session id, resolves navigation into history
// loads or resets, sends user input, reveals answers progressively and
// reconciles like/dislike feedback against the remote store.
//
// A Conversation is safe for concurrent use. The turn sequence is never
// modified in place: every write builds a new slice and swaps it in under
// the mutex, so a Snapshot can be read without further locking.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"AssistChat/internal/session"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRevealInterval = 20 * time.Millisecond
	DefaultRevealStep     = 1

	ApologyText  = "Une erreur est survenue. Veuillez réessayer."
	FallbackText = "Je suis là pour vous aider. Pouvez-vous reformuler votre question ?"
)

var (
	ErrTurnNotFound     = errors.New("turn not found")
	ErrNotAssistantTurn = errors.New("feedback only applies to assistant turns")
	ErrEmptyTurn        = errors.New("feedback requires a turn with text")
	ErrInvalidFeedback  = errors.New("feedback must be liked or disliked")
)

// Remote is the conversation service as seen by the state machine
type Remote interface {
	Query(ctx context.Context, sessionID, text string) (session.Reply, error)
	History(ctx context.Context, sessionID string) ([]session.Exchange, error)
	Feedback(ctx context.Context, sessionID, turnID string, value session.Feedback) error
}

// State of the session identity resolver
type State int

const (
	StateIdle State = iota
	StateLoadingHistory
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingHistory:
		return "loading_history"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is an immutable view of the conversation. Version increases
// with every change.
type Snapshot struct {
	Version   uint64
	SessionID string
	State     State
	Turns     []session.Turn
}

// Options tunes a Conversation. Zero values select the defaults.
type Options struct {
	RevealInterval time.Duration
	RevealStep     int // runes revealed per tick

	ApologyText  string
	FallbackText string

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	Now   func() time.Time
	NewID func() string

	// OnChange receives snapshots in version order; stale ones are
	// dropped. It must not call methods that modify the conversation.
	OnChange func(Snapshot)
}

// Conversation owns the turns and the session id of one chat view
type Conversation struct {
	remote Remote
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	revealsCompleted  metric.Int64Counter
	feedbackRollbacks metric.Int64Counter
	historyFailures   metric.Int64Counter

	mu         sync.Mutex
	state      State
	sessionID  string
	turns      []session.Turn
	epoch      uint64 // bumped on every reset, guards late results
	version    uint64
	loadCancel context.CancelFunc
	reveal     *revealTask
	reveals    sync.WaitGroup

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates an idle conversation backed by remote.
func New(remote Remote, opts Options) (*Conversation, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if opts.RevealInterval <= 0 {
		opts.RevealInterval = DefaultRevealInterval
	}
	if opts.RevealStep < 1 {
		opts.RevealStep = DefaultRevealStep
	}
	if opts.ApologyText == "" {
		opts.ApologyText = ApologyText
	}
	if opts.FallbackText == "" {
		opts.FallbackText = FallbackText
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("assistchat/conversation")
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("assistchat/conversation")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	c := &Conversation{
		remote: remote,
		opts:   opts,
		logger: opts.Logger,
		tracer: opts.Tracer,
		state:  StateIdle,
	}
	c.revealsCompleted = c.counter("conversation.reveal.completed", "Progressive reveals that showed the full answer")
	c.feedbackRollbacks = c.counter("conversation.feedback.rollbacks", "Optimistic feedback updates reverted after a failed save")
	c.historyFailures = c.counter("conversation.history.failures", "History loads that degraded to an empty conversation")
	return c, nil
}

func (c *Conversation) counter(name, desc string) metric.Int64Counter {
	counter, err := c.opts.Meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}

// SessionID returns the current session id, empty while unset.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the resolver state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Turns returns a copy of the turn sequence.
func (c *Conversation) Turns() []session.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.turns)
}

// Snapshot returns the current view.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Revealing reports whether an answer is being revealed.
func (c *Conversation) Revealing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reveal != nil
}

// Wait blocks until no reveal is running. It must not race with Send.
func (c *Conversation) Wait() {
	c.reveals.Wait()
}

// Close stops any reveal and history load without touching the turns.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.stopRevealLocked()
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.mu.Unlock()
	c.reveals.Wait()
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   c.version,
		SessionID: c.sessionID,
		State:     c.state,
		Turns:     c.turns,
	}
}

// changedLocked records a modification and returns the view to publish
// once the mutex is released.
func (c *Conversation) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Conversation) notify(s Snapshot) {
	if c.opts.OnChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if s.Version <= c.delivered {
		return
	}
	c.delivered = s.Version
	c.opts.OnChange(s)
}

// resetLocked abandons everything tied to the current session and starts
// an empty one.
func (c *Conversation) resetLocked(sessionID string, state State) {
	c.stopRevealLocked()
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.epoch++
	c.turns = nil
	c.sessionID = sessionID
	c.state = state
}

func (c *Conversation) indexLocked(turnID string) int {
	for i := range c.turns {
		if c.turns[i].ID == turnID {
			return i
		}
	}
	return -1
}

func (c *Conversation) appendTurnLocked(t session.Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = c.opts.Now()
	}
	if n := len(c.turns); n > 0 && t.CreatedAt.Before(c.turns[n-1].CreatedAt) {
		t.CreatedAt = c.turns[n-1].CreatedAt
	}
	next := make([]session.Turn, len(c.turns), len(c.turns)+1)
	copy(next, c.turns)
	c.turns = append(next, t)
}

// updateTurnLocked swaps in a copy of the sequence with turnID modified.
// It reports false when the turn no longer exists.
func (c *Conversation) updateTurnLocked(turnID string, fn func(*session.Turn)) bool {
	i := c.indexLocked(turnID)
	if i < 0 {
		return false
	}
	next := slices.Clone(c.turns)
	fn(&next[i])
	c.turns = next
	return true
}

// clampTimestamps makes CreatedAt non-decreasing along turns, in place.
func clampTimestamps(turns []session.Turn) {
	for i := 1; i < len(turns); i++ {
		if turns[i].CreatedAt.Before(turns[i-1].CreatedAt) {
			turns[i].CreatedAt = turns[i-1].CreatedAt
		}
	}
}
