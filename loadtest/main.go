// Command loadtest drives a running server: it registers users in groups of
// three, creates one group chat per trio and has every member send messages
// over the websocket while counting what it receives.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/logging"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type account struct {
	ID       identity.ID
	Username string
	Token    string
}

type runner struct {
	base     string
	ws       string
	messages int
	logger   *zap.Logger
	sent     atomic.Int64
	received atomic.Int64
}

func main() {
	base := flag.String("base", "http://localhost:3000", "server base URL")
	groups := flag.Int("groups", 50, "number of three-member groups")
	messages := flag.Int("messages", 20, "messages per user")
	flag.Parse()

	logger, err := logging.New("info", true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	u, err := url.Parse(*base)
	if err != nil {
		logger.Fatal("bad base url", zap.Error(err))
	}
	u.Scheme = map[string]string{"http": "ws", "https": "wss"}[u.Scheme]
	u.Path = "/ws"

	r := &runner{base: *base + "/api/v1", ws: u.String(), messages: *messages, logger: logger}
	logger.Info("starting", zap.Int("users", *groups*3), zap.Int("messages_per_user", *messages))

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *groups; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.runGroup(n)
		}(i)
	}
	wg.Wait()

	logger.Info("done",
		zap.Int64("sent", r.sent.Load()),
		zap.Int64("received", r.received.Load()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (r *runner) runGroup(n int) {
	run := uuid.NewString()[:8]
	members := make([]account, 3)
	for i := range members {
		acc, err := r.signup(fmt.Sprintf("lt_%s_%d_%d", run, n, i))
		if err != nil {
			r.logger.Warn("signup failed", zap.Int("group", n), zap.Error(err))
			return
		}
		members[i] = acc
	}

	chatID, err := r.newGroup(members[0].Token, fmt.Sprintf("load %s %d", run, n), []identity.ID{members[1].ID, members[2].ID})
	if err != nil {
		r.logger.Warn("group creation failed", zap.Int("group", n), zap.Error(err))
		return
	}
	ids := []identity.ID{members[0].ID, members[1].ID, members[2].ID}

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m account) {
			defer wg.Done()
			r.chat(m, chatID, ids)
		}(m)
	}
	wg.Wait()
}

func (r *runner) signup(username string) (account, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"name":     username,
		"username": username,
		"email":    username + "@loadtest.local",
		"password": "password123",
		"bio":      "load test",
	} {
		_ = form.WriteField(k, v)
	}
	fw, err := form.CreateFormFile("avatar", "avatar.txt")
	if err != nil {
		return account{}, err
	}
	_, _ = fw.Write([]byte("avatar"))
	_ = form.Close()

	resp, err := http.Post(r.base+"/user/new", form.FormDataContentType(), &body)
	if err != nil {
		return account{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return account{}, fmt.Errorf("register %s: status %d", username, resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
		User  struct {
			ID identity.ID `json:"_id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return account{}, err
	}
	return account{ID: out.User.ID, Username: username, Token: out.Token}, nil
}

func (r *runner) newGroup(token, name string, members []identity.ID) (string, error) {
	payload, _ := json.Marshal(map[string]any{"name": name, "members": members})
	req, err := http.NewRequest(http.MethodPost, r.base+"/chat/new", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		ChatID string `json:"chatId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ChatID, nil
}

func (r *runner) chat(m account, chatID string, members []identity.ID) {
	conn, _, err := websocket.DefaultDialer.Dial(r.ws+"?token="+url.QueryEscape(m.Token), nil)
	if err != nil {
		r.logger.Warn("ws connect failed", zap.String("user", m.Username), zap.Error(err))
		return
	}
	defer conn.Close()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			r.received.Add(1)
		}
	}()

	for i := 0; i < r.messages; i++ {
		frame, err := realtime.Encode(realtime.EventNewMessage, realtime.NewMessagePayload{
			ChatID:  chatID,
			Members: members,
			Message: fmt.Sprintf("load test %d from %s", i, m.Username),
		})
		if err != nil {
			r.logger.Error("encode", zap.Error(err))
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			r.logger.Warn("send failed", zap.String("user", m.Username), zap.Error(err))
			return
		}
		r.sent.Add(1)
		time.Sleep(10 * time.Millisecond)
	}
	// Let the last fan-out frames arrive before hanging up.
	time.Sleep(500 * time.Millisecond)
}
