// Package auth supplies bearer credentials to the conversation client.
// Acquiring and renewing tokens is handled elsewhere (the login flow
// writes the token file); this package only reads what is there.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when no bearer token is available.
var ErrNoCredential = errors.New("no bearer credential available")

// Static returns a token source that always yields token.
func Static(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: strings.TrimSpace(token),
		TokenType:   "Bearer",
	})
}

// File returns a token source that re-reads path on every call, so a
// token written by the login flow is picked up without a restart.
func File(path string) oauth2.TokenSource {
	return fileSource{path: path}
}

type fileSource struct {
	path string
}

func (f fileSource) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// FromConfig prefers the token file over an inline token.
func FromConfig(token, tokenFile string) oauth2.TokenSource {
	if tokenFile != "" {
		return File(tokenFile)
	}
	return Static(token)
}
