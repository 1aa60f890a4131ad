package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mahaj/dakiya/pkg/auth"
	"github.com/mahaj/dakiya/pkg/broker"
	"github.com/mahaj/dakiya/pkg/ingest"
	"github.com/mahaj/dakiya/pkg/ledger"
	"github.com/mahaj/dakiya/pkg/presence"
)

const onlinePartiesKey = "parties:online"

// conversationIndex lists the parties someone has recently talked to.
// Satisfied by *ledger.Conversations.
type conversationIndex interface {
	Recent(ctx context.Context, partyID string) ([]ledger.Conversation, error)
}

type Server struct {
	broker         *broker.Broker
	registry       *presence.Registry
	auth           *auth.Manager
	mirror         presenceMirror
	conversations  conversationIndex
	log            *slog.Logger
	maxUploadBytes int64
}

func NewServer(
	b *broker.Broker,
	registry *presence.Registry,
	authManager *auth.Manager,
	mirror presenceMirror,
	conversations conversationIndex,
	log *slog.Logger,
	maxUploadBytes int64,
) *Server {
	return &Server{
		broker:         b,
		registry:       registry,
		auth:           authManager,
		mirror:         mirror,
		conversations:  conversations,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(s.authMiddleware)
	protected.HandleFunc("/messages/send/{id}", s.handleSendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/upload-file/{id}", s.handleSendFile).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{id}", s.handleHistory).Methods(http.MethodGet)
	protected.HandleFunc("/conversations", s.handleConversations).Methods(http.MethodGet)
	protected.HandleFunc("/parties/online", s.handleOnline).Methods(http.MethodGet)

	return corsMiddleware(r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}
		claims, err := s.auth.Validate(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), auth.PartyKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func partyFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(auth.PartyKey).(*auth.Claims)
	if !ok {
		return "", false
	}
	return claims.PartyID, true
}

type loginRequest struct {
	PartyID string `json:"party_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PartyID == "" {
		http.Error(w, "party_id is required", http.StatusBadRequest)
		return
	}

	token, err := s.auth.Generate(req.PartyID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

// respondSendError maps the broker's error taxonomy onto HTTP statuses.
// Push failures never reach this point: they are swallowed inside the
// broker once the message is durable.
func (s *Server) respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrEmptyMessage):
		http.Error(w, "message needs text or an attachment", http.StatusBadRequest)
	case errors.Is(err, ingest.ErrUnsupportedMediaType):
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
	case errors.Is(err, ingest.ErrUpstreamStore):
		s.log.Error("attachment store failure", "error", err)
		http.Error(w, "attachment upload failed", http.StatusBadGateway)
	case errors.Is(err, ledger.ErrPersistence):
		s.log.Error("ledger failure", "error", err)
		http.Error(w, "message could not be stored", http.StatusInternalServerError)
	default:
		s.log.Error("send failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
