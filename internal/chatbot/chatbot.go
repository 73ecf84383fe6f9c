// Package chatbot is the interactive terminal front end. It reads user
// input and commands, drives a conversation and renders it as it changes.
package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"AssistChat/internal/config"
	"AssistChat/internal/conversation"
	"AssistChat/internal/session"
)

// ChatLister lists the conversations of the current user
type ChatLister interface {
	ListChats(ctx context.Context) ([]session.ChatSummary, error)
}

// ChatBot represents the terminal application
type ChatBot struct {
	config   config.Config
	conv     *conversation.Conversation
	chats    ChatLister
	renderer *Renderer
	logger   *slog.Logger
	in       io.Reader
}

// NewChatBot creates a ChatBot reading from in and writing to out.
func NewChatBot(cfg config.Config, remote conversation.Remote, chats ChatLister, logger *slog.Logger, in io.Reader, out io.Writer) (*ChatBot, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	renderer := NewRenderer(out)
	conv, err := conversation.New(remote, conversation.Options{
		RevealInterval: cfg.Reveal.Interval,
		RevealStep:     cfg.Reveal.Step,
		Logger:         logger,
		OnChange:       renderer.Render,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	return &ChatBot{
		config:   cfg,
		conv:     conv,
		chats:    chats,
		renderer: renderer,
		logger:   logger,
		in:       in,
	}, nil
}

// Conversation returns the conversation driven by the terminal.
func (cb *ChatBot) Conversation() *conversation.Conversation {
	return cb.conv
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		cb.conv.Navigate(ctx, "")
		cb.renderer.Printf("Started a new conversation\n\n")
		return false, nil

	case "/open":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /open <conversation id>")
		}
		cb.conv.Navigate(ctx, parts[1])
		if len(cb.conv.Turns()) == 0 {
			cb.renderer.Printf("Conversation %s has no messages\n\n", parts[1])
		}
		return false, nil

	case "/chats":
		if cb.chats == nil {
			return false, fmt.Errorf("listing conversations is not available")
		}
		chats, err := cb.chats.ListChats(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list conversations: %w", err)
		}
		if len(chats) == 0 {
			cb.renderer.Printf("No conversations yet.\n\n")
			return false, nil
		}
		var b strings.Builder
		b.WriteString("Your conversations:\n")
		current := cb.conv.SessionID()
		for _, c := range chats {
			marker := ""
			if c.ID == current {
				marker = " (current)"
			}
			fmt.Fprintf(&b, "  %s. %s%s\n", c.ID, c.Name, marker)
		}
		b.WriteString("\n")
		cb.renderer.Printf("%s", b.String())
		return false, nil

	case "/like", "/dislike":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: %s <answer number>", parts[0])
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return false, fmt.Errorf("invalid answer number: %s", parts[1])
		}
		turnID, ok := cb.assistantTurn(n)
		if !ok {
			return false, fmt.Errorf("no answer number %d, see /history", n)
		}
		requested := session.FeedbackLiked
		if parts[0] == "/dislike" {
			requested = session.FeedbackDisliked
		}
		if err := cb.conv.SetFeedback(ctx, turnID, requested); err != nil {
			return false, err
		}
		cb.renderer.Printf("Feedback on answer %d: %s\n\n", n, cb.feedbackOf(turnID))
		return false, nil

	case "/history":
		turns := cb.conv.Turns()
		if len(turns) == 0 {
			cb.renderer.Printf("No messages yet.\n\n")
			return false, nil
		}
		cb.renderer.Printf("%s\n", formatTurns(turns))
		return false, nil

	case "/help":
		cb.renderer.Printf("%s", strings.Join([]string{
			"Available commands:",
			"  /quit, /exit          - Exit",
			"  /new                  - Start a new conversation",
			"  /open <id>            - Resume a stored conversation",
			"  /chats                - List your conversations",
			"  /history              - Show the current conversation with answer numbers",
			"  /like <n>             - Like answer n (again to clear)",
			"  /dislike <n>          - Dislike answer n (again to clear)",
			"  /help                 - Show this help message",
			"", "",
		}, "\n"))
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// assistantTurn maps a 1-based answer number onto a turn id.
func (cb *ChatBot) assistantTurn(n int) (string, bool) {
	i := 0
	for _, turn := range cb.conv.Turns() {
		if turn.Role != session.RoleAssistant {
			continue
		}
		i++
		if i == n {
			return turn.ID, true
		}
	}
	return "", false
}

func (cb *ChatBot) feedbackOf(turnID string) session.Feedback {
	for _, turn := range cb.conv.Turns() {
		if turn.ID == turnID {
			return turn.Feedback
		}
	}
	return session.FeedbackNone
}

func (cb *ChatBot) prompt() string {
	if id := cb.conv.SessionID(); id != "" {
		return fmt.Sprintf("[%s] You: ", id)
	}
	return "[new] You: "
}

// Run starts the chat loop. It returns when the input ends, a quit
// command is read or ctx is cancelled.
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.conv.Close()

	cb.renderer.Printf("=== AssistChat ===\nType /help for commands, /quit to exit\n\n")
	cb.conv.Navigate(ctx, cb.config.SessionID)
	cb.renderer.Flush()
	if cb.config.SessionID != "" {
		cb.logger.Info("opened conversation", "session_id", cb.config.SessionID, "turns", len(cb.conv.Turns()))
	}

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cb.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		cb.renderer.Printf("%s", cb.prompt())

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			cb.renderer.Printf("\n")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			cb.renderer.Flush()
			if err != nil {
				cb.renderer.Printf("Error: %v\n\n", err)
				cb.logger.Error("command error", "command", input, "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		cb.renderer.Typed()
		cb.conv.Send(ctx, input)
		cb.conv.Wait()
		cb.renderer.Flush()
	}

	cb.renderer.Printf("Goodbye!\n")
	return nil
}
