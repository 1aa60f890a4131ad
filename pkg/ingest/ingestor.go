// Package ingest validates uploaded payloads and turns them into durable,
// addressable attachments.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mahaj/dakiya/pkg/model"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUpstreamStore        = errors.New("durable store failure")
)

// Store is the external durable blob store boundary. A single Put attempt
// per ingest; no retries here.
type Store interface {
	Put(ctx context.Context, payload io.Reader, mimeType string) (string, error)
}

// Two accepted call sites, two allow-lists: the image path takes common
// raster formats, the document path takes PDF and DOCX.
var allowed = map[model.AttachmentKind]map[string]bool{
	model.KindImage: {
		"image/png":  true,
		"image/jpeg": true,
		"image/gif":  true,
		"image/webp": true,
		"image/bmp":  true,
	},
	model.KindDocument: {
		"application/pdf": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	},
}

// Upload is an in-memory payload awaiting ingestion.
type Upload struct {
	Data         []byte
	DeclaredMime string
	Kind         model.AttachmentKind
}

type Ingestor struct {
	store Store
	log   *slog.Logger
}

func New(store Store, log *slog.Logger) *Ingestor {
	return &Ingestor{store: store, log: log}
}

// Ingest validates the declared MIME type against the allow-list for the
// upload's kind and, only then, streams the payload to the durable store.
// A disallowed type fails before any upstream traffic. Two ingests of
// identical bytes may yield two distinct URLs.
func (i *Ingestor) Ingest(ctx context.Context, upload Upload) (*model.Attachment, error) {
	mimeType := normalizeMime(upload.DeclaredMime)
	if mimeType == "" {
		mimeType = mimetype.Detect(upload.Data).String()
	}
	if !allowed[upload.Kind][mimeType] {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedMediaType, upload.Kind, mimeType)
	}

	url, err := i.store.Put(ctx, bytes.NewReader(upload.Data), mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamStore, err)
	}

	i.log.Debug("attachment stored", "kind", upload.Kind, "mime", mimeType, "url", url)
	return &model.Attachment{URL: url, MimeType: mimeType}, nil
}

// normalizeMime strips parameters like "; charset=..." and lowercases the
// media type. An unparseable declaration comes back empty so content
// sniffing can take over.
func normalizeMime(declared string) string {
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return ""
	}
	return mediaType
}
