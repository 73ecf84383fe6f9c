package conversation

import (
	"context"
	"errors"
	"strings"

	"AssistChat/internal/session"
	"AssistChat/internal/textnorm"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Navigate moves the conversation to the requested session. An empty id
// starts a new conversation immediately; any other id clears the turns
// and loads that session's history, returning once the load settles.
// Navigating to the current session is a no-op. A navigation made while a
// history load is in flight supersedes it and the older result is dropped.
func (c *Conversation) Navigate(ctx context.Context, requested string) {
	requested = strings.TrimSpace(requested)

	c.mu.Lock()
	if c.state != StateIdle && requested == c.sessionID {
		c.mu.Unlock()
		c.logger.Debug("navigation to current session ignored", "session_id", requested)
		return
	}

	if requested == "" {
		c.resetLocked("", StateReady)
		snap := c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
		c.logger.Info("started new conversation")
		return
	}

	c.resetLocked(requested, StateLoadingHistory)
	loadCtx, cancel := context.WithCancel(ctx)
	c.loadCancel = cancel
	epoch := c.epoch
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	loadCtx, span := c.tracer.Start(loadCtx, "conversation.navigate",
		trace.WithAttributes(attribute.String("session.id", requested)))
	history := c.loadHistory(loadCtx, requested)
	span.SetAttributes(attribute.Int("turns", len(history)))
	span.End()
	cancel()

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarded stale history", "session_id", requested)
		return
	}
	c.loadCancel = nil
	// turns sent while loading stay after the history
	merged := make([]session.Turn, 0, len(history)+len(c.turns))
	merged = append(merged, history...)
	merged = append(merged, c.turns...)
	clampTimestamps(merged)
	c.turns = merged
	c.state = StateReady
	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.logger.Info("loaded conversation", "session_id", requested, "turns", len(history))
}

// loadHistory expands the stored exchanges of sessionID into turns.
// Failures resolve to an empty sequence.
func (c *Conversation) loadHistory(ctx context.Context, sessionID string) []session.Turn {
	exchanges, err := c.remote.History(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			c.logger.Debug("history load cancelled", "session_id", sessionID)
			return nil
		}
		c.logger.Warn("failed to load history, starting empty", "session_id", sessionID, "error", err)
		c.historyFailures.Add(ctx, 1)
		return nil
	}

	turns := make([]session.Turn, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		ts := ex.Timestamp
		if ts.IsZero() {
			ts = c.opts.Now()
		}

		// exchanges without an id still need distinct turn ids
		id := ex.ID
		if id == "" {
			id = c.opts.NewID()
		}

		turns = append(turns, session.Turn{
			ID:        session.UserTurnID(id),
			Role:      session.RoleUser,
			Text:      textnorm.Normalize(ex.Query),
			CreatedAt: ts,
		})
		if ex.Response != "" {
			turns = append(turns, session.Turn{
				ID:        session.AssistantTurnID(id),
				Role:      session.RoleAssistant,
				Text:      textnorm.Normalize(ex.Response),
				CreatedAt: ts,
				Feedback:  ex.Feedback,
			})
		}
	}
	clampTimestamps(turns)
	return turns
}
