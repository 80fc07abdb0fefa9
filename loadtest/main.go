package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	pairs    = flag.Int("pairs", 50, "number of user pairs") // ⚠️ Start small. The rate limiter and DB pool set the ceiling.
	msgCount = flag.Int("msgs", 20, "messages per user")
	room     = flag.String("room", "devops", "room every user joins")
	interval = flag.Duration("interval", 250*time.Millisecond, "delay between sends (keep under RATE_LIMIT_PER_SEC)")
)

type loginResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
}

type envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

var (
	sent     atomic.Int64
	received atomic.Int64
	failures atomic.Int64
)

func main() {
	flag.Parse()

	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairs*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: u_0_a talks to u_0_b, u_1_a to u_1_b...
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d received=%d failures=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load(), failures.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	// 1. Sign up & Login
	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		failures.Add(1)
		return
	}

	// 2. Both sides chat at once: room messages plus DMs to the partner
	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChat(&wsWg, tokenA, userA, userB)
	go spamChat(&wsWg, tokenB, userB, userA)

	wsWg.Wait()
}

// authenticate signs up (ignoring "already exists") and logs in.
func authenticate(username, password string) string {
	resp, err := postJSON("/api/signup", map[string]string{
		"username":  username,
		"firstname": "Load",
		"lastname":  "Test",
		"password":  password,
	})
	if err == nil {
		resp.Body.Close()
	}

	resp, err = postJSON("/api/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || !data.Success {
		log.Printf("❌ Login Failed [%s]: status %d", username, resp.StatusCode)
		return ""
	}
	return data.AccessToken
}

func spamChat(wg *sync.WaitGroup, token, user, partner string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		failures.Add(1)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Event {
			case "groupMessage", "privateMessage":
				received.Add(1)
			case "serverError":
				failures.Add(1)
				log.Printf("⚠️ serverError [%s]: %v", user, env.Data["message"])
			}
		}
	}()

	if err := send(conn, "joinRoom", map[string]any{"username": user, "room": *room}); err != nil {
		log.Printf("❌ Join Fail [%s]: %v", user, err)
		return
	}
	time.Sleep(*interval)

	for i := 0; i < *msgCount; i++ {
		event, data := "groupMessage", map[string]any{
			"from_user": user,
			"room":      *room,
			"message":   fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		}
		if i%2 == 1 {
			event, data = "privateMessage", map[string]any{
				"from_user": user,
				"to_user":   partner,
				"message":   fmt.Sprintf("LoadTest DM %d from %s", i, user),
			}
		}
		if err := send(conn, event, data); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			failures.Add(1)
			break
		}
		sent.Add(1)
		time.Sleep(*interval)
	}

	// Give in-flight deliveries a moment before hanging up.
	time.Sleep(time.Second)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	log.Printf("✅ %s finished sending %d msgs", user, *msgCount)
}

func send(conn *websocket.Conn, event string, data map[string]any) error {
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

func wsURL(token string) string {
	u := strings.Replace(*baseURL, "http", "ws", 1) + "/ws"
	return u + "?token=" + url.QueryEscape(token)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
