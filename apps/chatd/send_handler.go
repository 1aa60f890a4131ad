package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mahaj/dakiya/pkg/broker"
	"github.com/mahaj/dakiya/pkg/ingest"
	"github.com/mahaj/dakiya/pkg/model"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// handleSendMessage accepts multipart form data with an optional "text"
// field and an optional "image" part. At least one must be present.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sender, ok := partyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	receiver := mux.Vars(r)["id"]

	req := broker.SendRequest{SenderID: sender, ReceiverID: receiver}

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	req.Text = r.FormValue("text")

	upload, err := s.readUpload(r, "image", model.KindImage)
	if errors.Is(err, errUploadTooLarge) {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Unreadable image part", http.StatusBadRequest)
		return
	}
	req.Upload = upload

	msg, err := s.broker.Send(r.Context(), req)
	if err != nil {
		s.respondSendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, msg)
}

// handleSendFile accepts a required "file" part on the document path
// (PDF and DOCX only).
func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	sender, ok := partyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	receiver := mux.Vars(r)["id"]

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}

	upload, err := s.readUpload(r, "file", model.KindDocument)
	if errors.Is(err, errUploadTooLarge) {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Unreadable file part", http.StatusBadRequest)
		return
	}
	if upload == nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}

	msg, err := s.broker.Send(r.Context(), broker.SendRequest{
		SenderID:   sender,
		ReceiverID: receiver,
		Upload:     upload,
	})
	if err != nil {
		s.respondSendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, msg)
}

// readUpload pulls the named multipart file into memory, if present. An
// oversized payload is rejected outright rather than truncated: a
// durable URL must hold exactly the bytes the sender uploaded. The
// declared Content-Type travels with it; the ingestor decides whether it
// is acceptable.
func (s *Server) readUpload(r *http.Request, field string, kind model.AttachmentKind) (*ingest.Upload, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		return nil, errUploadTooLarge
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &ingest.Upload{
		Data:         data,
		DeclaredMime: header.Header.Get("Content-Type"),
		Kind:         kind,
	}, nil
}
