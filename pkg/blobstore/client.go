// Package blobstore is the client for the external durable object store.
// It makes exactly one upload attempt per call; retry policy, if any,
// belongs to callers.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	uploadURL string
	http      *http.Client
}

func NewClient(uploadURL string, timeout time.Duration) *Client {
	return &Client{
		uploadURL: uploadURL,
		http:      &http.Client{Timeout: timeout},
	}
}

// Put streams payload to the store and returns the permanent URL the store
// assigned. The payload is piped into the request body rather than
// buffered a second time. The store is free to assign a fresh URL for
// identical bytes; callers must not rely on deduplication.
func (c *Client) Put(ctx context.Context, payload io.Reader, mimeType string) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename=%q`, uuid.NewString()))
		header.Set("Content-Type", mimeType)

		part, err := mw.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, payload); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("store returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding store response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("store response missing url")
	}
	return out.URL, nil
}
