package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mahaj/dakiya/pkg/model"
)

// handleHistory returns the full conversation between the authenticated
// party and the party in the path, oldest message first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	party, ok := partyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	other := mux.Vars(r)["id"]

	messages, err := s.broker.History(r.Context(), party, other)
	if err != nil {
		s.log.Error("fetching history", "party", party, "other", other, "error", err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	s.respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	party, ok := partyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := s.conversations.Recent(r.Context(), party)
	if err != nil {
		s.log.Error("fetching conversations", "party", party, "error", err)
		http.Error(w, "Failed to retrieve conversations", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, conversations)
}

// handleOnline reports which parties currently hold a live connection,
// from the best-effort mirror maintained by the websocket layer.
func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	parties, err := s.mirror.Online(r.Context())
	if err != nil {
		s.log.Error("fetching online parties", "error", err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, parties)
}
