// Command webhook-receiver is a copyable Hireloop webhook consumer. It
// checks the signature and timestamp, drops redelivered events and logs
// what it received.
//
//	HIRELOOP_WEBHOOK_SECRET=whsec_... PORT=9000 go run .
//
// Register https://<host>/webhook as the endpoint's target_url.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	maxBody   = 1 << 20
	tolerance = 5 * time.Minute
)

type envelope struct {
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type applicationData struct {
	ApplicationID string `json:"application_id"`
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Score         *int   `json:"score"`
}

type subscriptionData struct {
	SubscriptionID string `json:"subscription_id"`
	From           string `json:"from"`
	To             string `json:"to"`
}

type receiver struct {
	key string
	log *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func main() {
	secret := os.Getenv("HIRELOOP_WEBHOOK_SECRET")
	if secret == "" {
		slog.Error("HIRELOOP_WEBHOOK_SECRET is required")
		os.Exit(1)
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}

	// The HMAC key is the hex SHA-256 of the secret shown at creation.
	sum := sha256.Sum256([]byte(secret))
	rcv := &receiver{key: hex.EncodeToString(sum[:]), log: slog.Default(), seen: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", rcv.ServeHTTP)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	slog.Info("listening", "addr", ":"+port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if err := rc.verify(r.Header, body, time.Now()); err != nil {
		rc.log.Warn("rejected delivery", "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var ev envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Hireloop retries until it sees a 2xx, so the same event can arrive
	// more than once.
	if rc.duplicate(ev.EventID) {
		rc.log.Info("duplicate event ignored", "event_id", ev.EventID)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rc.handle(ev, r.Header.Get("X-Hireloop-Delivery-Id"))
	w.WriteHeader(http.StatusNoContent)
}

func (rc *receiver) verify(h http.Header, body []byte, now time.Time) error {
	sig, ts := h.Get("X-Hireloop-Signature"), h.Get("X-Hireloop-Timestamp")
	if sig == "" || ts == "" {
		return errors.New("missing signature headers")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("malformed timestamp")
	}
	if age := now.Sub(time.Unix(sec, 0)); age > tolerance || age < -tolerance {
		return errors.New("timestamp outside tolerance")
	}
	mac := hmac.New(sha256.New, []byte(rc.key))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	if !hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil)))) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (rc *receiver) duplicate(eventID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.seen[eventID] {
		return true
	}
	rc.seen[eventID] = true
	return false
}

func (rc *receiver) handle(ev envelope, deliveryID string) {
	log := rc.log.With("event", ev.EventType, "event_id", ev.EventID, "delivery_id", deliveryID)
	switch ev.EventType {
	case "application.created", "application.status_changed", "application.scored":
		var d applicationData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			log.Warn("bad application payload", "error", err)
			return
		}
		log.Info("application event", "application_id", d.ApplicationID, "job_id", d.JobID, "status", d.Status, "score", d.Score)
	case "subscription.status_changed":
		var d subscriptionData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			log.Warn("bad subscription payload", "error", err)
			return
		}
		log.Info("subscription event", "subscription_id", d.SubscriptionID, "from", d.From, "to", d.To)
	default:
		log.Info("unhandled event")
	}
}
