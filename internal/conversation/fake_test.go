package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"AssistChat/internal/session"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type queryCall struct {
	SessionID string
	Text      string
}

type feedbackCall struct {
	SessionID string
	TurnID    string
	Value     session.Feedback
}

// fakeRemote records calls and delegates to per-test functions.
type fakeRemote struct {
	mu        sync.Mutex
	queries   []queryCall
	histories []string
	feedbacks []feedbackCall

	queryFn    func(ctx context.Context, sessionID, text string) (session.Reply, error)
	historyFn  func(ctx context.Context, sessionID string) ([]session.Exchange, error)
	feedbackFn func(ctx context.Context, sessionID, turnID string, value session.Feedback) error
}

func (f *fakeRemote) Query(ctx context.Context, sessionID, text string) (session.Reply, error) {
	f.mu.Lock()
	f.queries = append(f.queries, queryCall{sessionID, text})
	fn := f.queryFn
	f.mu.Unlock()
	if fn == nil {
		return session.Reply{Text: "ok"}, nil
	}
	return fn(ctx, sessionID, text)
}

func (f *fakeRemote) History(ctx context.Context, sessionID string) ([]session.Exchange, error) {
	f.mu.Lock()
	f.histories = append(f.histories, sessionID)
	fn := f.historyFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, sessionID)
}

func (f *fakeRemote) Feedback(ctx context.Context, sessionID, turnID string, value session.Feedback) error {
	f.mu.Lock()
	f.feedbacks = append(f.feedbacks, feedbackCall{sessionID, turnID, value})
	fn := f.feedbackFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, sessionID, turnID, value)
}

func (f *fakeRemote) queryCalls() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.queries...)
}

func (f *fakeRemote) historyCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.histories...)
}

func (f *fakeRemote) feedbackCalls() []feedbackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedbackCall(nil), f.feedbacks...)
}

func newTestConversation(t *testing.T, remote Remote, opts Options) *Conversation {
	t.Helper()
	if opts.RevealInterval == 0 {
		opts.RevealInterval = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c, err := New(remote, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// lastAssistant returns the last assistant turn or fails the test.
func lastAssistant(t *testing.T, c *Conversation) session.Turn {
	t.Helper()
	turns := c.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == session.RoleAssistant {
			return turns[i]
		}
	}
	t.Fatalf("no assistant turn in %+v", turns)
	return session.Turn{}
}
