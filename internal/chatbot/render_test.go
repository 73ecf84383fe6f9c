package chatbot

import (
	"bytes"
	"testing"

	"AssistChat/internal/conversation"
	"AssistChat/internal/session"

	"github.com/stretchr/testify/assert"
)

func snap(turns ...session.Turn) conversation.Snapshot {
	return conversation.Snapshot{Turns: turns}
}

func user(id, text string) session.Turn {
	return session.Turn{ID: id, Role: session.RoleUser, Text: text}
}

func assistant(id, text string) session.Turn {
	return session.Turn{ID: id, Role: session.RoleAssistant, Text: text}
}

func TestRendererRevealsProgressively(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(snap(user("u1", "bonjour")))
	r.Render(snap(user("u1", "bonjour"), assistant("a1", "")))
	r.Render(snap(user("u1", "bonjour"), assistant("a1", "Ça")))
	r.Render(snap(user("u1", "bonjour"), assistant("a1", "Ça va")))
	r.Render(snap(user("u1", "bonjour"), assistant("a1", "Ça va")))
	r.Flush()

	assert.Equal(t, "You: bonjour\n\nAssistant: Ça va\n\n", buf.String())
}

func TestRendererSkipsTypedInput(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Typed()
	r.Render(snap(user("u1", "salut")))
	r.Render(snap(user("u1", "salut"), assistant("a1", "ok")))

	assert.Equal(t, "Assistant: ok", buf.String())
}

func TestRendererStartsOverAfterReset(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(snap(user("u1", "q1"), assistant("a1", "r1")))
	r.Render(snap())
	r.Render(snap(user("u2", "q2")))

	assert.Equal(t, "You: q1\n\nAssistant: r1\n\nYou: q2", buf.String())
}

func TestRendererFinishesEarlierTurnOnItsOwnLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(snap(assistant("a1", "déb")))
	r.Render(snap(assistant("a1", "déb"), assistant("a2", "")))
	r.Render(snap(assistant("a1", "début complet"), assistant("a2", "x")))

	assert.Equal(t, "Assistant: déb\n\nAssistant: \n\nAssistant: ut complet\n\nAssistant: x", buf.String())
}

func TestPrintfEndsOpenTurn(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(snap(assistant("a1", "texte")))
	r.Printf("prompt> ")

	assert.Equal(t, "Assistant: texte\n\nprompt> ", buf.String())
}

func TestFormatTurns(t *testing.T) {
	liked := assistant("a1", "r1")
	liked.Feedback = session.FeedbackLiked

	got := formatTurns([]session.Turn{user("u1", "q1"), liked, user("u2", "q2"), assistant("a2", "r2")})

	want := "    You: q1\n" +
		"[1] Assistant: r1 (liked)\n" +
		"    You: q2\n" +
		"[2] Assistant: r2\n"
	assert.Equal(t, want, got)
}
