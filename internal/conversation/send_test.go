package conversation

import (
	"context"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"AssistChat/internal/session"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreTurnMeta = cmpopts.IgnoreFields(session.Turn{}, "ID", "CreatedAt")

func TestSendRevealsAnswer(t *testing.T) {
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{SessionID: "7", MessageID: "11", Text: "Ça va ?"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{})
	c.Navigate(context.Background(), "")

	c.Send(context.Background(), "bonjour")
	c.Wait()

	want := []session.Turn{
		{Role: session.RoleUser, Text: "bonjour"},
		{Role: session.RoleAssistant, Text: "Ça va ?"},
	}
	got := c.Turns()
	if diff := cmp.Diff(want, got, ignoreTurnMeta); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "assistant-11", got[1].ID)
	assert.Equal(t, "7", c.SessionID())
	assert.False(t, c.Revealing())
	assert.Equal(t, []queryCall{{SessionID: "", Text: "bonjour"}}, remote.queryCalls())
}

func TestSendIgnoresWhitespace(t *testing.T) {
	remote := &fakeRemote{}
	c := newTestConversation(t, remote, Options{})
	c.Navigate(context.Background(), "")
	before := c.Snapshot()

	c.Send(context.Background(), "  \n\t ")

	assert.Empty(t, c.Turns())
	assert.Empty(t, remote.queryCalls())
	assert.Equal(t, before.Version, c.Snapshot().Version)
}

func TestSendAppendsUserTurnBeforeReply(t *testing.T) {
	var c *Conversation
	var seen []session.Turn
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			seen = c.Turns()
			return session.Reply{Text: "réponse"}, nil
		},
	}
	c = newTestConversation(t, remote, Options{})

	c.Send(context.Background(), "question")
	c.Wait()

	require.Len(t, seen, 1)
	assert.Equal(t, session.RoleUser, seen[0].Role)
	assert.Equal(t, "question", seen[0].Text)
}

func TestSendAdoptsSessionIDOnce(t *testing.T) {
	replies := []string{"7", "8"}
	var mu sync.Mutex
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			mu.Lock()
			defer mu.Unlock()
			id := replies[0]
			replies = replies[1:]
			return session.Reply{SessionID: id, Text: "ok"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{})
	c.Navigate(context.Background(), "")

	c.Send(context.Background(), "first")
	c.Wait()
	c.Send(context.Background(), "second")
	c.Wait()

	assert.Equal(t, "7", c.SessionID())
	assert.Equal(t, []queryCall{
		{SessionID: "", Text: "first"},
		{SessionID: "7", Text: "second"},
	}, remote.queryCalls())
}

func TestSendFailureAppendsApology(t *testing.T) {
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{}, errBoom
		},
	}
	c := newTestConversation(t, remote, Options{})
	c.Navigate(context.Background(), "")

	c.Send(context.Background(), "bonjour")

	assert.False(t, c.Revealing())
	want := []session.Turn{
		{Role: session.RoleUser, Text: "bonjour"},
		{Role: session.RoleAssistant, Text: ApologyText},
	}
	if diff := cmp.Diff(want, c.Turns(), ignoreTurnMeta); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, c.SessionID())
}

func TestSendEmptyReplyUsesFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"empty quoted string", `""`},
		{"only line breaks", `"\n\n"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{
				queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
					return session.Reply{SessionID: "3", MessageID: "5", Text: tt.reply}, nil
				},
			}
			c := newTestConversation(t, remote, Options{FallbackText: "rien"})

			c.Send(context.Background(), "hello")
			c.Wait()

			turn := lastAssistant(t, c)
			assert.Equal(t, "rien", turn.Text)
			assert.NoError(t, c.SetFeedback(context.Background(), turn.ID, session.FeedbackLiked))
		})
	}
}

func TestSendNormalizesReply(t *testing.T) {
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{Text: `"café\n\n\n\nouvert"`}, nil
		},
	}
	c := newTestConversation(t, remote, Options{})

	c.Send(context.Background(), "horaires")
	c.Wait()

	assert.Equal(t, "café\n\nouvert", lastAssistant(t, c).Text)
}

func TestRevealIsMonotonic(t *testing.T) {
	const answer = "Bonjour, ça marche très bien 👍"

	var mu sync.Mutex
	var texts []string
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{MessageID: "5", Text: answer}, nil
		},
	}
	c := newTestConversation(t, remote, Options{
		RevealStep: 3,
		OnChange: func(s Snapshot) {
			for _, turn := range s.Turns {
				if turn.ID == "assistant-5" {
					mu.Lock()
					texts = append(texts, turn.Text)
					mu.Unlock()
				}
			}
		},
	})

	c.Send(context.Background(), "ça va ?")
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, texts)
	assert.Equal(t, answer, texts[len(texts)-1])
	for i := range texts {
		assert.True(t, utf8.ValidString(texts[i]))
		assert.Equal(t, texts[i], answer[:len(texts[i])])
		if i > 0 {
			assert.GreaterOrEqual(t, len(texts[i]), len(texts[i-1]))
		}
	}
}

func TestSnapshotsArriveInVersionOrder(t *testing.T) {
	var mu sync.Mutex
	var versions []uint64
	c := newTestConversation(t, &fakeRemote{}, Options{
		OnChange: func(s Snapshot) {
			mu.Lock()
			versions = append(versions, s.Version)
			mu.Unlock()
		},
	})

	c.Send(context.Background(), "un")
	c.Send(context.Background(), "deux")
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestNewRevealFinishesPrevious(t *testing.T) {
	n := 0
	var mu sync.Mutex
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			if n == 1 {
				return session.Reply{MessageID: "1", Text: "première réponse"}, nil
			}
			return session.Reply{MessageID: "2", Text: "seconde"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{RevealInterval: time.Hour})

	c.Send(context.Background(), "a")
	c.Send(context.Background(), "b")

	turns := c.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "assistant-1", turns[1].ID)
	assert.Equal(t, "première réponse", turns[1].Text)
	assert.Equal(t, "assistant-2", turns[3].ID)
	assert.Empty(t, turns[3].Text)
	assert.True(t, c.Revealing())
}

func TestDuplicateMessageIDGetsFreshTurnID(t *testing.T) {
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{MessageID: "9", Text: "x"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{})

	c.Send(context.Background(), "a")
	c.Wait()
	c.Send(context.Background(), "b")
	c.Wait()

	turns := c.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "assistant-9", turns[1].ID)
	assert.NotEqual(t, turns[1].ID, turns[3].ID)
}

func TestReplyAfterResetIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			close(entered)
			<-release
			return session.Reply{SessionID: "99", Text: "trop tard"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{})
	c.Navigate(context.Background(), "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Send(context.Background(), "bonjour")
	}()
	<-entered

	c.Navigate(context.Background(), "")
	close(release)
	<-done

	assert.Empty(t, c.Turns())
	assert.Empty(t, c.SessionID())
	assert.False(t, c.Revealing())
}

func TestResetCancelsReveal(t *testing.T) {
	remote := &fakeRemote{
		queryFn: func(ctx context.Context, sessionID, text string) (session.Reply, error) {
			return session.Reply{SessionID: "4", Text: "une longue réponse"}, nil
		},
	}
	c := newTestConversation(t, remote, Options{RevealInterval: time.Hour})

	c.Send(context.Background(), "bonjour")
	require.True(t, c.Revealing())

	c.Navigate(context.Background(), "")
	c.Wait()

	assert.False(t, c.Revealing())
	assert.Empty(t, c.Turns())
	assert.Equal(t, StateReady, c.State())
}

func TestTimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		// clock moves backwards on every call
		return base.Add(-time.Duration(calls) * time.Minute)
	}
	c := newTestConversation(t, &fakeRemote{}, Options{Now: now})

	c.Send(context.Background(), "un")
	c.Wait()
	c.Send(context.Background(), "deux")
	c.Wait()

	turns := c.Turns()
	require.Len(t, turns, 4)
	for i := 1; i < len(turns); i++ {
		assert.False(t, turns[i].CreatedAt.Before(turns[i-1].CreatedAt), "turn %d", i)
	}
}

func TestNewRejectsNilRemote(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}
