package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahaj/dakiya/pkg/auth"
	"github.com/mahaj/dakiya/pkg/broker"
	"github.com/mahaj/dakiya/pkg/ingest"
	"github.com/mahaj/dakiya/pkg/ledger"
	"github.com/mahaj/dakiya/pkg/model"
	"github.com/mahaj/dakiya/pkg/presence"
)

type fakeStore struct {
	calls int
}

func (s *fakeStore) Put(ctx context.Context, payload io.Reader, mimeType string) (string, error) {
	s.calls++
	return fmt.Sprintf("https://store.example/blob-%d", s.calls), nil
}

type memLedger struct {
	mu   sync.Mutex
	next int64
	msgs map[model.ConversationKey][]model.Message
}

func newMemLedger() *memLedger {
	return &memLedger{msgs: make(map[model.ConversationKey][]model.Message)}
}

func (l *memLedger) Append(ctx context.Context, msg model.Message) (*model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	msg.ID = l.next
	msg.CreatedAt = time.Now().UTC()
	key := msg.Conversation()
	l.msgs[key] = append(l.msgs[key], msg)
	return &msg, nil
}

func (l *memLedger) Query(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Message(nil), l.msgs[key]...), nil
}

type fakeMirror struct {
	mu      sync.Mutex
	parties map[string]struct{}
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{parties: make(map[string]struct{})}
}

func (m *fakeMirror) MarkOnline(ctx context.Context, partyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties[partyID] = struct{}{}
	return nil
}

func (m *fakeMirror) MarkOffline(ctx context.Context, partyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parties, partyID)
	return nil
}

func (m *fakeMirror) Online(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.parties))
	for party := range m.parties {
		out = append(out, party)
	}
	return out, nil
}

type fakeIndex struct {
	byParty map[string][]ledger.Conversation
}

func (i *fakeIndex) Recent(ctx context.Context, partyID string) ([]ledger.Conversation, error) {
	return i.byParty[partyID], nil
}

type testEnv struct {
	server *Server
	store  *fakeStore
	mirror *fakeMirror
	index  *fakeIndex
	api    *httptest.Server
	auth   *auth.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvLimit(t, 1<<20)
}

func newTestEnvLimit(t *testing.T, maxUploadBytes int64) *testEnv {
	t.Helper()
	store := &fakeStore{}
	mirror := newFakeMirror()
	index := &fakeIndex{byParty: make(map[string][]ledger.Conversation)}
	authManager := auth.NewManager("test-secret", time.Hour)
	registry := presence.NewRegistry()
	log := slog.Default()

	b := broker.New(ingest.New(store, log), newMemLedger(), registry, nil, log)
	server := NewServer(b, registry, authManager, mirror, index, log, maxUploadBytes)

	api := httptest.NewServer(server.Routes())
	t.Cleanup(api.Close)
	return &testEnv{server: server, store: store, mirror: mirror, index: index, api: api, auth: authManager}
}

func (e *testEnv) token(t *testing.T, partyID string) string {
	t.Helper()
	token, err := e.auth.Generate(partyID)
	require.NoError(t, err)
	return token
}

func multipartBody(t *testing.T, text string, fileField, fileName, fileMime string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if text != "" {
		require.NoError(t, mw.WriteField("text", text))
	}
	if fileField != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, fileName))
		header.Set("Content-Type", fileMime)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func Test_Login_Issues_Token(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	payload, _ := json.Marshal(map[string]string{"party_id": "alice"})
	resp, err := http.Post(env.api.URL+"/login", "application/json", bytes.NewReader(payload))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&out))
	req.NotEmpty(out.Token)
}

func Test_Protected_Routes_Require_Token(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, err := http.Get(env.api.URL + "/messages/bob")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Send_Text_Message_Over_HTTP(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	body, contentType := multipartBody(t, "hello bob", "", "", "", nil)
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/send/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	var msg model.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&msg))
	req.Equal("alice", msg.SenderID)
	req.Equal("bob", msg.ReceiverID)
	req.Equal("hello bob", msg.Text)
	req.NotZero(msg.ID)
}

func Test_Send_Empty_Message_Is_Bad_Request(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	body, contentType := multipartBody(t, "   ", "", "", "", nil)
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/send/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_Upload_File_Rejects_Disallowed_Type(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	body, contentType := multipartBody(t, "", "file", "evil.exe", "application/x-msdownload", []byte("MZ"))
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/upload-file/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnsupportedMediaType, resp.StatusCode)
	req.Zero(env.store.calls, "the durable store must never see a rejected type")
}

func Test_Upload_File_Accepts_PDF(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	body, contentType := multipartBody(t, "", "file", "notes.pdf", "application/pdf", []byte("%PDF-1.7"))
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/upload-file/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	var msg model.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&msg))
	req.NotNil(msg.Attachment)
	req.Equal("application/pdf", msg.Attachment.MimeType)
	req.Equal(1, env.store.calls)
}

func Test_Upload_File_Rejects_Oversized_Payload(t *testing.T) {
	req := require.New(t)
	env := newTestEnvLimit(t, 64)
	token := env.token(t, "alice")

	oversized := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("a"), 200)...)
	body, contentType := multipartBody(t, "", "file", "big.pdf", "application/pdf", oversized)
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/upload-file/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusRequestEntityTooLarge, resp.StatusCode)
	req.Zero(env.store.calls, "a truncated payload must never reach the durable store")
}

func Test_Conversations_Lists_Recent_Partners(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	now := time.Now().UTC().Truncate(time.Millisecond)
	env.index.byParty["alice"] = []ledger.Conversation{
		{PartyID: "alice", OtherPartyID: "bob", LastUpdated: now},
		{PartyID: "alice", OtherPartyID: "carol", LastUpdated: now.Add(-time.Hour)},
	}

	request, err := http.NewRequest(http.MethodGet, env.api.URL+"/conversations", nil)
	req.NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var conversations []ledger.Conversation
	req.NoError(json.NewDecoder(resp.Body).Decode(&conversations))
	req.Len(conversations, 2)
	req.Equal("bob", conversations[0].OtherPartyID)
	req.Equal("carol", conversations[1].OtherPartyID)
}

func Test_Online_Parties_Reflects_Mirror(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.token(t, "alice")

	ctx := context.Background()
	req.NoError(env.mirror.MarkOnline(ctx, "bob"))
	req.NoError(env.mirror.MarkOnline(ctx, "carol"))
	req.NoError(env.mirror.MarkOffline(ctx, "carol"))

	request, err := http.NewRequest(http.MethodGet, env.api.URL+"/parties/online", nil)
	req.NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var parties []string
	req.NoError(json.NewDecoder(resp.Body).Decode(&parties))
	req.Equal([]string{"bob"}, parties)
}

func Test_History_Returns_Messages_In_Send_Order(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	aliceToken := env.token(t, "alice")
	bobToken := env.token(t, "bob")

	send := func(token, receiver, text string) {
		body, contentType := multipartBody(t, text, "", "", "", nil)
		request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/send/"+receiver, body)
		req.NoError(err)
		request.Header.Set("Content-Type", contentType)
		request.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(request)
		req.NoError(err)
		resp.Body.Close()
		req.Equal(http.StatusCreated, resp.StatusCode)
	}

	send(aliceToken, "bob", "first")
	send(bobToken, "alice", "second")
	send(aliceToken, "bob", "third")

	request, err := http.NewRequest(http.MethodGet, env.api.URL+"/messages/alice", nil)
	req.NoError(err)
	request.Header.Set("Authorization", "Bearer "+bobToken)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var messages []model.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&messages))
	req.Len(messages, 3)
	req.Equal("first", messages[0].Text)
	req.Equal("second", messages[1].Text)
	req.Equal("third", messages[2].Text)
}
