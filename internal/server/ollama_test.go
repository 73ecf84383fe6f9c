package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAnswerer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var req OllamaRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3:latest", req.Model)
			assert.False(t, req.Stream)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "user", req.Messages[1]["role"])
			assert.Equal(t, "bonjour", req.Messages[1]["content"])
			w.Write([]byte(`{"model":"llama3:latest","message":{"role":"assistant","content":"Salut !"},"done":true}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3:latest","size":4661224676}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	o := NewOllamaAnswerer(ts.URL+"/", "llama3:latest", 5*time.Second)

	answer, err := o.Answer(context.Background(), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, "Salut !", answer.Text)
	assert.Equal(t, "llm", answer.Category)

	ok, err := o.HasModel(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOllamaAnswererError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer ts.Close()

	o := NewOllamaAnswerer(ts.URL, "missing", 5*time.Second)

	_, err := o.Answer(context.Background(), "bonjour")
	assert.ErrorContains(t, err, "model not found")
}

func TestCannedAnswerer(t *testing.T) {
	answer, err := CannedAnswerer{}.Answer(context.Background(), "tarifs")
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "tarifs")
	assert.Equal(t, "general", answer.Category)
}
