package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

type signinResponse struct {
	Token string `json:"token"`
	User  struct {
		Username string `json:"username"`
	} `json:"user"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type counters struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

type loadTest struct {
	baseURL  string
	wsURL    string
	messages int
	interval time.Duration
	settle   time.Duration
	run      string
	stats    *counters
	logger   *zap.SugaredLogger
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	pairs := flag.Int("pairs", 50, "number of user pairs")
	messages := flag.Int("messages", 20, "messages sent by each user")
	interval := flag.Duration("interval", 10*time.Millisecond, "delay between sends")
	settle := flag.Duration("settle", 3*time.Second, "time to wait for deliveries after the last send")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer zl.Sync()

	lt := &loadTest{
		baseURL:  strings.TrimRight(*baseURL, "/"),
		wsURL:    "ws" + strings.TrimPrefix(strings.TrimRight(*baseURL, "/"), "http") + "/ws",
		messages: *messages,
		interval: *interval,
		settle:   *settle,
		run:      xid.New().String(),
		stats:    &counters{},
		logger:   zl.Sugar(),
	}

	lt.logger.Infof("Starting load test %s: %d users, %d messages each", lt.run, *pairs*2, *messages)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			lt.runPair(pairID)
		}(i)
	}
	wg.Wait()

	sent, received := lt.stats.sent.Load(), lt.stats.received.Load()
	lt.logger.Infow("Load test complete",
		"elapsed", time.Since(start),
		"sent", sent,
		"received", received,
		// every message reaches the sender and the receiver
		"expected", sent*2,
		"errors", lt.stats.errors.Load(),
	)
}

func (lt *loadTest) runPair(pairID int) {
	userA := fmt.Sprintf("u_%s_%d_a", lt.run, pairID)
	userB := fmt.Sprintf("u_%s_%d_b", lt.run, pairID)

	tokenA := lt.authenticate(userA, "password123")
	tokenB := lt.authenticate(userB, "password123")
	if tokenA == "" || tokenB == "" {
		return
	}

	connA := lt.dial(userA, tokenA)
	if connA == nil {
		return
	}
	defer connA.Close()
	connB := lt.dial(userB, tokenB)
	if connB == nil {
		return
	}
	defer connB.Close()

	var wg sync.WaitGroup
	wg.Add(4)
	go lt.listen(&wg, connA, userA)
	go lt.listen(&wg, connB, userB)
	go lt.spam(&wg, connA, userA, userB)
	go lt.spam(&wg, connB, userB, userA)
	wg.Wait()
}

// authenticate signs up (a conflict is fine on reruns) and signs in.
func (lt *loadTest) authenticate(username, password string) string {
	resp, err := lt.postJSON("/auth/signup", map[string]string{
		"username": username,
		"email":    username + "@loadtest.local",
		"password": password,
	})
	if err != nil {
		lt.fail("Signup failed [%s]: %v", username, err)
		return ""
	}
	resp.Body.Close()

	resp, err = lt.postJSON("/auth/signin", map[string]string{"username": username, "password": password})
	if err != nil {
		lt.fail("Signin failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		lt.fail("Signin failed [%s]: status %d", username, resp.StatusCode)
		return ""
	}

	var data signinResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		lt.fail("Decoding signin [%s]: %v", username, err)
		return ""
	}
	return data.Token
}

func (lt *loadTest) dial(username, token string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(lt.wsURL+"?token="+token, nil)
	if err != nil {
		lt.fail("WS connect failed [%s]: %v", username, err)
		return nil
	}
	return conn
}

func (lt *loadTest) spam(wg *sync.WaitGroup, conn *websocket.Conn, from, to string) {
	defer wg.Done()

	for i := 0; i < lt.messages; i++ {
		data, _ := json.Marshal(map[string]string{
			"receiver_username": to,
			"message":           fmt.Sprintf("LoadTest Msg %d from %s", i, from),
		})
		if err := conn.WriteJSON(envelope{Event: "send_message", Data: data}); err != nil {
			lt.fail("Send failed [%s]: %v", from, err)
			return
		}
		lt.stats.sent.Add(1)
		time.Sleep(lt.interval)
	}
	lt.logger.Debugf("%s finished sending %d msgs", from, lt.messages)
}

// listen counts deliveries until the connection has been quiet for the settle period.
func (lt *loadTest) listen(wg *sync.WaitGroup, conn *websocket.Conn, username string) {
	defer wg.Done()

	for {
		conn.SetReadDeadline(time.Now().Add(lt.settle))
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case "new_message":
			lt.stats.received.Add(1)
		case "error":
			lt.fail("Server error event [%s]: %s", username, env.Data)
		}
	}
}

func (lt *loadTest) postJSON(endpoint string, data interface{}) (*http.Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return http.Post(lt.baseURL+endpoint, "application/json", bytes.NewBuffer(body))
}

func (lt *loadTest) fail(template string, args ...interface{}) {
	lt.stats.errors.Add(1)
	lt.logger.Warnf(template, args...)
}
