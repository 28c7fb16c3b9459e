// Package main load-tests realtime notification delivery. One account owns a
// board and holds many websocket connections; a second account replies to the
// board on a timer, and every connection should receive each notification.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	RepliesSent          int64
	EventsReceived       int64
	LatencyTotalMicros   int64
	Errors               int64
}

var (
	metrics    Metrics
	lastSentAt atomic.Int64
	httpClient = &http.Client{Timeout: 5 * time.Second}
)

func main() {
	host := flag.String("host", "localhost:8000", "API server host")
	owner := flag.String("owner", "", "Username that owns the board and listens")
	poster := flag.String("poster", "", "Username that posts replies")
	password := flag.String("password", "password1234!", "Password shared by both accounts")
	clients := flag.Int("clients", 50, "Number of concurrent websocket connections")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	interval := flag.Duration("interval", 5*time.Second, "Delay between replies")
	flag.Parse()

	if *owner == "" || *poster == "" || *owner == *poster {
		fmt.Fprintln(os.Stderr, "usage: notifyload -owner <username> -poster <username> [-clients N]")
		os.Exit(2)
	}

	log.Printf("Target: %s, clients: %d, duration: %v", *host, *clients, *duration)

	ownerToken, err := login(*host, *owner, *password)
	if err != nil {
		log.Fatalf("Owner login failed: %v", err)
	}
	posterToken, err := login(*host, *poster, *password)
	if err != nil {
		log.Fatalf("Poster login failed: %v", err)
	}

	var board struct {
		ID uint `json:"id"`
	}
	if err := call(*host, http.MethodPost, "/api/boards", ownerToken, map[string]string{
		"title":   "Notification load test",
		"content": "Replies to this board are generated by notifyload.",
	}, http.StatusCreated, &board); err != nil {
		log.Fatalf("Create board failed: %v", err)
	}
	log.Printf("Listening on board %d", board.ID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runListener(*host, ownerToken, stopChan, &wg)
		time.Sleep(20 * time.Millisecond)
	}

	wg.Add(1)
	go runPoster(*host, posterToken, board.ID, *interval, stopChan, &wg)

	select {
	case <-time.After(*duration):
		log.Println("Test duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stopChan)
	wg.Wait()

	printMetrics(*clients)
}

func login(host, username, password string) (string, error) {
	var result struct {
		Access string `json:"access"`
	}
	err := call(host, http.MethodPost, "/api/token", "", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK, &result)
	return result.Access, err
}

// call sends a JSON request and decodes the response into out when the status matches.
func call(host, method, path, token string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, "http://"+host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runListener(host, token string, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	// Tickets are single-use, so every connection asks for its own.
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	if err := call(host, http.MethodPost, "/api/ws/ticket", token, nil, http.StatusOK, &ticket); err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws", RawQuery: "ticket=" + url.QueryEscape(ticket.Ticket)}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	go func() {
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			var event struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(raw, &event) != nil || event.Type == "" {
				continue
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if sent := lastSentAt.Load(); sent > 0 {
				atomic.AddInt64(&metrics.LatencyTotalMicros, time.Since(time.UnixMicro(sent)).Microseconds())
			}
		}
	}()

	<-stopChan
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func runPoster(host, token string, boardID uint, interval time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			lastSentAt.Store(time.Now().UnixMicro())
			err := call(host, http.MethodPost, "/api/replies", token, map[string]interface{}{
				"board":   boardID,
				"comment": fmt.Sprintf("load reply #%d", n),
			}, http.StatusCreated, nil)
			if err != nil {
				log.Printf("reply failed: %v", err)
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.RepliesSent, 1)
		}
	}
}

func printMetrics(clients int) {
	sent := atomic.LoadInt64(&metrics.RepliesSent)
	received := atomic.LoadInt64(&metrics.EventsReceived)
	connected := atomic.LoadInt64(&metrics.ConnectionsSuccess)

	log.Println("Test Results")
	log.Println("============")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", connected)
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Replies Sent: %d", sent)
	log.Printf("Events Received: %d (expected %d)", received, sent*connected)
	if received > 0 {
		avg := time.Duration(atomic.LoadInt64(&metrics.LatencyTotalMicros)/received) * time.Microsecond
		log.Printf("Average Delivery Latency: %v", avg)
	}
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
	if clients > 0 && connected < int64(clients) {
		os.Exit(1)
	}
}
