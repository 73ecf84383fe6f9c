package conversation

import (
	"context"
	"fmt"

	"AssistChat/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetFeedback toggles requested on an assistant turn. Requesting the value
// the turn already holds clears it. The change is applied locally first;
// if the service does not accept it the turn goes back to the value it had
// before this call and the returned error says why.
func (c *Conversation) SetFeedback(ctx context.Context, turnID string, requested session.Feedback) error {
	if !requested.Valid() {
		return ErrInvalidFeedback
	}

	ctx, span := c.tracer.Start(ctx, "conversation.feedback", trace.WithAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("feedback.requested", requested.String()),
	))
	defer span.End()

	c.mu.Lock()
	i := c.indexLocked(turnID)
	if i < 0 {
		c.mu.Unlock()
		return ErrTurnNotFound
	}
	turn := c.turns[i]
	if turn.Role != session.RoleAssistant {
		c.mu.Unlock()
		return ErrNotAssistantTurn
	}
	if turn.Text == "" {
		c.mu.Unlock()
		return ErrEmptyTurn
	}

	prior := turn.Feedback
	next := requested
	if prior == requested {
		next = session.FeedbackNone
	}
	epoch := c.epoch
	sessionID := c.sessionID
	c.updateTurnLocked(turnID, func(t *session.Turn) { t.Feedback = next })
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	err := c.remote.Feedback(ctx, sessionID, turnID, next)
	if err == nil {
		c.logger.Info("feedback saved", "session_id", sessionID, "turn_id", turnID, "feedback", next.String())
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.feedbackRollbacks.Add(ctx, 1)

	c.mu.Lock()
	if c.epoch == epoch && c.updateTurnLocked(turnID, func(t *session.Turn) { t.Feedback = prior }) {
		snap = c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
	} else {
		c.mu.Unlock()
	}

	c.logger.Warn("failed to save feedback, reverted",
		"session_id", sessionID, "turn_id", turnID, "feedback", prior.String(), "error", err)
	return fmt.Errorf("failed to save feedback: %w", err)
}
