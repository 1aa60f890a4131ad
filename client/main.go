package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mahaj/dakiya/pkg/model"
)

type loginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, partyID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"party_id": partyID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func sendText(apiAddr, token, receiver, text string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("text", text)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, apiAddr+"/messages/send/"+receiver, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed: %s %s", resp.Status, string(respBody))
	}
	return nil
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "chatd address")
	partyID := flag.String("user", "user1", "party id")
	peer := flag.String("to", "", "party id to chat with")
	flag.Parse()

	if *peer == "" {
		log.Fatal("-to is required")
	}
	apiAddr := "http://" + *serverAddr

	log.Printf("Logging in as %s...", *partyID)
	token, err := login(apiAddr, *partyID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var event struct {
				Event   string        `json:"event"`
				Payload model.Message `json:"payload"`
			}
			if err := json.Unmarshal(payload, &event); err != nil {
				log.Printf("Received raw: %s", payload)
				continue
			}
			msg := event.Payload
			if msg.Attachment != nil {
				fmt.Printf("\r%s: [%s] %s %s\n> ", msg.SenderID, msg.Attachment.MimeType, msg.Attachment.URL, msg.Text)
			} else {
				fmt.Printf("\r%s: %s\n> ", msg.SenderID, msg.Text)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case line, ok := <-input:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				fmt.Print("> ")
				continue
			}
			if err := sendText(apiAddr, token, *peer, text); err != nil {
				log.Println(err)
			}
			fmt.Print("> ")
		}
	}
}
