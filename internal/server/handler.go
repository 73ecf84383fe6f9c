// Package server is a reference implementation of the conversation
// service: it answers queries, stores every exchange per chat in sqlite
// and serves history and feedback to authenticated users.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AssistChat/internal/backend"
	"AssistChat/internal/cache"
	"AssistChat/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Server handles the conversation API
type Server struct {
	store     *Store
	answerer  Answerer
	responses *cache.Cache
	secret    []byte
	logger    *slog.Logger
	tracer    trace.Tracer
	cacheHits metric.Int64Counter
}

// New creates the API handler set. secret verifies bearer tokens.
func New(store *Store, answerer Answerer, responses *cache.Cache, secret []byte, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if responses == nil {
		responses = cache.New(0)
	}

	meter := otel.Meter("assistchat/server")
	hits, err := meter.Int64Counter("server.cache.hits",
		metric.WithDescription("Queries answered from the response cache"))
	if err != nil {
		logger.Warn("failed to create counter", "name", "server.cache.hits", "error", err)
		hits = noop.Int64Counter{}
	}

	return &Server{
		store:     store,
		answerer:  answerer,
		responses: responses,
		secret:    secret,
		logger:    logger,
		tracer:    otel.Tracer("assistchat/server"),
		cacheHits: hits,
	}, nil
}

// Routes returns the HTTP handler of the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(api chi.Router) {
		api.Use(Authenticate(s.secret))

		api.Post("/query", s.handleQuery)
		api.Post("/feedback", s.handleFeedback)
		api.Get("/user_chats", s.handleUserChats)
		api.Get("/history/{chatID}", s.handleConversations)
		api.Get("/chat/{chatID}/conversations", s.handleConversations)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type queryResponse struct {
	Response  string `json:"response"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

// handleQuery answers a query and files it under the given chat, or a
// new chat named after the query when none is given.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "query_handler")
	defer span.End()

	userID, _ := UserID(ctx)

	var payload backend.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		respondError(w, http.StatusBadRequest, "Query is required")
		return
	}

	var chatID int64
	if payload.ChatID != "" {
		id, err := strconv.ParseInt(string(payload.ChatID), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid chat_id")
			return
		}
		if err := s.store.OwnsChat(ctx, userID, id); err != nil {
			s.respondStoreError(w, err, "Chat not found")
			return
		}
		chatID = id
	}

	answer, ok := s.cachedAnswer(ctx, query)
	if !ok {
		var err error
		answer, err = s.answerer.Answer(ctx, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("failed to generate answer", "user_id", userID, "error", err)
			respondError(w, http.StatusBadGateway, "failed to generate answer")
			return
		}
		s.responses.Set(query, answer.Text)
	}

	if chatID == 0 {
		id, err := s.store.CreateChat(ctx, userID, chatName(query))
		if err != nil {
			s.respondStoreError(w, err, "")
			return
		}
		chatID = id
		s.logger.Info("created chat", "user_id", userID, "chat_id", chatID)
	}

	recordID, err := s.store.AddRecord(ctx, chatID, query, asciiJSONString(answer.Text), answer.Category)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	span.SetAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.String("answer.category", answer.Category),
	)
	respondJSON(w, http.StatusOK, queryResponse{
		Response:  answer.Text,
		ChatID:    chatID,
		MessageID: recordID,
	})
}

func (s *Server) cachedAnswer(ctx context.Context, query string) (Answer, bool) {
	text, ok := s.responses.Get(query)
	if !ok {
		return Answer{}, false
	}
	s.cacheHits.Add(ctx, 1)
	s.logger.Info("cache hit", "key", cache.GenerateCacheKey(query)[:16])
	return Answer{Text: text, Category: "cached"}, true
}

type conversationJSON struct {
	ID        int64   `json:"id"`
	Query     string  `json:"query"`
	Response  string  `json:"response"`
	Category  string  `json:"category"`
	Timestamp string  `json:"timestamp"`
	Feedback  *string `json:"feedback"`
}

// handleConversations returns the stored exchanges of a chat owned by
// the caller.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserID(ctx)

	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err := s.store.OwnsChat(ctx, userID, chatID); err != nil {
		s.respondStoreError(w, err, "Chat not found")
		return
	}

	records, err := s.store.Records(ctx, chatID)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	conversations := make([]conversationJSON, 0, len(records))
	for _, rec := range records {
		c := conversationJSON{
			ID:        rec.ID,
			Query:     rec.Query,
			Response:  rec.Response,
			Category:  rec.Category,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if rec.Feedback.Valid {
			fb := rec.Feedback.String
			c.Feedback = &fb
		}
		conversations = append(conversations, c)
	}

	respondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleFeedback stores or clears the feedback of one exchange. The
// message id may be the bare exchange id or its assistant turn id.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserID(ctx)

	var payload backend.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chatID, err := strconv.ParseInt(string(payload.ChatID), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat_id")
		return
	}
	recordID, err := strconv.ParseInt(strings.TrimPrefix(payload.MessageID, session.AssistantTurnID("")), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Message not found")
		return
	}

	var value sql.NullString
	if payload.Feedback != nil {
		fb := session.Feedback(*payload.Feedback)
		if !fb.Valid() {
			respondError(w, http.StatusBadRequest, "feedback must be liked, disliked or null")
			return
		}
		value = sql.NullString{String: string(fb), Valid: true}
	}

	if err := s.store.SetFeedback(ctx, userID, chatID, recordID, value); err != nil {
		s.respondStoreError(w, err, "Message not found")
		return
	}

	s.logger.Info("feedback saved", "user_id", userID, "chat_id", chatID, "message_id", recordID, "feedback", value.String)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatJSON struct {
	ChatID   int64  `json:"chat_id"`
	ChatName string `json:"chat_name"`
}

func (s *Server) handleUserChats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserID(ctx)

	chats, err := s.store.Chats(ctx, userID)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	out := make([]chatJSON, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatJSON{ChatID: c.ID, ChatName: c.Name})
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": out})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, ErrNotFound) && notFound != "" {
		respondError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("store error", "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}
