package chatbot

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"AssistChat/internal/conversation"
	"AssistChat/internal/session"
)

// Renderer writes conversation snapshots to a terminal as they change.
// Turns are printed once, and a turn whose text grows is continued in
// place, which shows the progressive reveal.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]int // bytes of each turn's text already written
	last    string         // turn the cursor is on
	open    bool           // the last printed turn has no trailing newline
	typed   int            // user turns already shown as typed input
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, printed: make(map[string]int)}
}

// Typed tells the renderer the next user turn was already echoed by the
// terminal and must not be printed again.
func (r *Renderer) Typed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typed++
}

// Render brings the output up to date with s. It is meant to be passed
// as the conversation's change observer.
func (r *Renderer) Render(s conversation.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wasReset(s.Turns) {
		r.endLine()
		r.printed = make(map[string]int)
		r.last = ""
		r.typed = 0
	}

	for _, turn := range s.Turns {
		n, seen := r.printed[turn.ID]
		if !seen && turn.Role == session.RoleUser && r.typed > 0 {
			r.typed--
			r.printed[turn.ID] = len(turn.Text)
			continue
		}
		if seen && len(turn.Text) <= n {
			continue
		}
		if !seen || turn.ID != r.last {
			r.endLine()
			fmt.Fprint(r.out, label(turn.Role))
		}
		fmt.Fprint(r.out, turn.Text[n:])
		r.printed[turn.ID] = len(turn.Text)
		r.last = turn.ID
		r.open = true
	}
}

// Flush terminates a partially written turn.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
}

// Printf writes a line of interface text, keeping it apart from turns.
func (r *Renderer) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	fmt.Fprintf(r.out, format, args...)
}

func (r *Renderer) endLine() {
	if r.open {
		fmt.Fprint(r.out, "\n\n")
		r.open = false
		r.last = ""
	}
}

// wasReset reports whether a printed turn disappeared from turns. Turns
// are only ever appended, so that happens only when the conversation
// was cleared.
func (r *Renderer) wasReset(turns []session.Turn) bool {
	if len(r.printed) == 0 {
		return false
	}
	present := 0
	for _, turn := range turns {
		if _, ok := r.printed[turn.ID]; ok {
			present++
		}
	}
	return present < len(r.printed)
}

func label(role session.Role) string {
	if role == session.RoleUser {
		return "You: "
	}
	return "Assistant: "
}

// formatTurns lists turns for the /history command. Assistant turns are
// numbered for /like and /dislike.
func formatTurns(turns []session.Turn) string {
	var b strings.Builder
	n := 0
	for _, turn := range turns {
		if turn.Role == session.RoleAssistant {
			n++
			fmt.Fprintf(&b, "[%d] %s%s", n, label(turn.Role), turn.Text)
			if turn.Feedback != session.FeedbackNone {
				fmt.Fprintf(&b, " (%s)", turn.Feedback)
			}
		} else {
			fmt.Fprintf(&b, "    %s%s", label(turn.Role), turn.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}
