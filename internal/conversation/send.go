package conversation

import (
	"context"
	"strings"
	"time"

	"AssistChat/internal/session"
	"AssistChat/internal/textnorm"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// revealTask progressively writes full into one assistant turn
type revealTask struct {
	turnID string
	full   []rune
	cancel context.CancelFunc
}

// Send appends a user turn with text, queries the service and reveals the
// answer in a new assistant turn. Whitespace-only text is ignored. Send
// returns once the reveal has started; failures become an apology turn.
func (c *Conversation) Send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	ctx, span := c.tracer.Start(ctx, "conversation.send")
	defer span.End()

	c.mu.Lock()
	epoch := c.epoch
	sessionID := c.sessionID
	c.appendTurnLocked(session.Turn{
		ID:   c.opts.NewID(),
		Role: session.RoleUser,
		Text: text,
	})
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	reply, err := c.remote.Query(ctx, sessionID, text)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarded reply for a conversation that was reset", "session_id", sessionID)
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.appendTurnLocked(session.Turn{
			ID:   c.opts.NewID(),
			Role: session.RoleAssistant,
			Text: c.opts.ApologyText,
		})
		snap = c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
		c.logger.Error("failed to send message", "session_id", sessionID, "error", err)
		return
	}

	if c.sessionID == "" && reply.SessionID != "" {
		c.sessionID = reply.SessionID
		c.logger.Info("adopted session id", "session_id", reply.SessionID)
	} else if reply.SessionID != "" && reply.SessionID != c.sessionID {
		c.logger.Warn("service reported a different session id, keeping current",
			"session_id", c.sessionID, "reported", reply.SessionID)
	}

	full := textnorm.Normalize(reply.Text)
	if strings.TrimSpace(full) == "" {
		full = c.opts.FallbackText
	}

	turnID := c.opts.NewID()
	if reply.MessageID != "" && c.indexLocked(session.AssistantTurnID(reply.MessageID)) < 0 {
		turnID = session.AssistantTurnID(reply.MessageID)
	}
	c.appendTurnLocked(session.Turn{
		ID:   turnID,
		Role: session.RoleAssistant,
	})
	c.startRevealLocked(turnID, full)
	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	span.SetAttributes(
		attribute.String("session.id", snap.SessionID),
		attribute.Int("answer.runes", len([]rune(full))),
	)
}

// startRevealLocked begins revealing full into turnID. A reveal still in
// progress is finished at once so only one turn is ever being revealed.
func (c *Conversation) startRevealLocked(turnID, full string) {
	if prev := c.reveal; prev != nil {
		prev.cancel()
		c.reveal = nil
		c.updateTurnLocked(prev.turnID, func(t *session.Turn) {
			t.Text = string(prev.full)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &revealTask{
		turnID: turnID,
		full:   []rune(full),
		cancel: cancel,
	}
	c.reveal = task
	c.reveals.Add(1)
	go c.runReveal(ctx, task)
}

// stopRevealLocked abandons the active reveal, leaving its turn as is.
func (c *Conversation) stopRevealLocked() {
	if c.reveal != nil {
		c.reveal.cancel()
		c.reveal = nil
	}
}

func (c *Conversation) runReveal(ctx context.Context, task *revealTask) {
	defer c.reveals.Done()
	defer task.cancel()

	ticker := time.NewTicker(c.opts.RevealInterval)
	defer ticker.Stop()

	shown := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		shown += c.opts.RevealStep
		if shown > len(task.full) {
			shown = len(task.full)
		}

		c.mu.Lock()
		if ctx.Err() != nil || c.reveal != task {
			c.mu.Unlock()
			return
		}
		found := c.updateTurnLocked(task.turnID, func(t *session.Turn) {
			t.Text = string(task.full[:shown])
		})
		done := shown >= len(task.full)
		if !found || done {
			c.reveal = nil
		}
		snap := c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)

		if !found {
			return
		}
		if done {
			c.revealsCompleted.Add(ctx, 1)
			return
		}
	}
}
