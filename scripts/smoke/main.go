package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// End-to-end smoke check against a running chatd: login both parties,
// send a text message, fetch history from the receiver's side.
func main() {
	apiAddr := "http://localhost:8080"

	aliceToken := login(apiAddr, "alice")
	bobToken := login(apiAddr, "bob")
	fmt.Printf("Tokens: %s... %s...\n", aliceToken[:10], bobToken[:10])

	// Send a text message from alice to bob.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("text", "smoke test message")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, apiAddr+"/messages/send/bob", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("send failed:", err)
	}
	dump("send", resp)

	// A disallowed attachment must be rejected with 415.
	body.Reset()
	mw = multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="evil.exe"`)
	header.Set("Content-Type", "application/x-msdownload")
	part, _ := mw.CreatePart(header)
	part.Write([]byte("MZ"))
	mw.Close()

	req, _ = http.NewRequest(http.MethodPost, apiAddr+"/messages/upload-file/bob", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("upload failed:", err)
	}
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		log.Fatalf("expected 415 for exe upload, got %s", resp.Status)
	}
	resp.Body.Close()
	fmt.Println("disallowed upload rejected with 415")

	// History from bob's side includes alice's message.
	req, _ = http.NewRequest(http.MethodGet, apiAddr+"/messages/alice", nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("history failed:", err)
	}
	dump("history", resp)
}

func login(apiAddr, partyID string) string {
	reqBody, _ := json.Marshal(map[string]string{"party_id": partyID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	return out.Token
}

func dump(label string, resp *http.Response) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s: %s %s\n", label, resp.Status, string(body))
}
