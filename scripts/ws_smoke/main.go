// Smoke client: registers two users, opens a conversation watch for the
// receiver, sends one message from the sender and waits for the live push.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vendalink/salechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "REST base URL")
	wsAddr := flag.String("ws", "ws://localhost:8080/ws", "WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := time.Now().UnixNano()
	senderToken, err := registerOrLogin(ctx, *api, fmt.Sprintf("smoke-sender-%d", suffix))
	if err != nil {
		return fmt.Errorf("sender auth: %w", err)
	}
	receiverToken, err := registerOrLogin(ctx, *api, fmt.Sprintf("smoke-receiver-%d", suffix))
	if err != nil {
		return fmt.Errorf("receiver auth: %w", err)
	}

	receiverID, err := lookupSelfID(ctx, *api, receiverToken, fmt.Sprintf("smoke-receiver-%d", suffix), senderToken)
	if err != nil {
		return fmt.Errorf("lookup receiver: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, *wsAddr+"?token="+receiverToken, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeWatchList}); err != nil {
		return fmt.Errorf("watch list: %w", err)
	}

	// Send over REST from the other account while the watch is open.
	if err := sendMessage(ctx, *api, senderToken, receiverID, *text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s watch=%s", outbound.Event, outbound.WatchID)
		}
		fmt.Println()

		if outbound.Error != nil {
			return fmt.Errorf("server error: %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}

		if outbound.Event != proto.EventConversations {
			continue
		}

		raw, err := json.Marshal(outbound.Data)
		if err != nil {
			return fmt.Errorf("marshal outbound data: %w", err)
		}
		var convs []proto.ConversationPayload
		if err := json.Unmarshal(raw, &convs); err != nil {
			return fmt.Errorf("unmarshal conversations: %w", err)
		}
		for _, conv := range convs {
			if conv.LastMessage.Body == *text {
				fmt.Printf("Live push confirmed: peer=%d unread=%d body=%q\n",
					conv.PeerID, conv.UnreadCount, conv.LastMessage.Body)
				return nil
			}
		}
	}
}

func registerOrLogin(ctx context.Context, api, username string) (string, error) {
	body := map[string]string{"username": username, "password": "smoke-password"}
	token, status, err := postJSON(ctx, api+"/api/register", "", body)
	if err != nil {
		return "", err
	}
	if status == http.StatusConflict {
		token, status, err = postJSON(ctx, api+"/api/login", "", body)
		if err != nil {
			return "", err
		}
	}
	if token == "" {
		return "", fmt.Errorf("no token (status %d)", status)
	}
	return token, nil
}

func lookupSelfID(ctx context.Context, api, token, username, searcherToken string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api+"/api/users/search?q="+username, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+searcherToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var users []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return 0, err
	}
	for _, u := range users {
		if u.Username == username {
			return u.ID, nil
		}
	}
	return 0, fmt.Errorf("user %s not found", username)
}

func sendMessage(ctx context.Context, api, token string, receiverID int64, text string) error {
	payload := map[string]any{"receiver_id": receiverID, "body": text}
	_, status, err := postJSON(ctx, api+"/api/messages", token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func postJSON(ctx context.Context, url, token string, body any) (string, int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.Token, resp.StatusCode, nil
}
