package server

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Answer is the text produced for a query and the category it is filed under
type Answer struct {
	Text     string
	Category string
}

// Answerer produces the answer to a user query
type Answerer interface {
	Answer(ctx context.Context, query string) (Answer, error)
}

// CannedAnswerer echoes the query back. It lets the service run without a
// model.
type CannedAnswerer struct{}

func (CannedAnswerer) Answer(_ context.Context, query string) (Answer, error) {
	return Answer{
		Text:     fmt.Sprintf("Vous avez demandé : « %s ».\nUn conseiller vous répondra très bientôt.", query),
		Category: "general",
	}, nil
}

const maxChatNameWords = 5

// chatName derives a chat title from the first query of a chat.
func chatName(query string) string {
	words := strings.Fields(query)
	if len(words) > maxChatNameWords {
		words = words[:maxChatNameWords]
	}
	name := strings.Join(words, " ")
	if utf8.RuneCountInString(name) > 60 {
		name = string([]rune(name)[:60])
	}
	if name == "" {
		return "Nouvelle conversation"
	}
	return name
}
