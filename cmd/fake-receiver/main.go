// Command fake-receiver is a test webhook endpoint: it verifies the outhook
// signature headers and can be told to fail the first N requests so the
// retry path can be exercised end to end.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/menucast/outhook/internal/config"
	"github.com/menucast/outhook/internal/signature"
)

var (
	cfg config.Config

	// reqCount is bumped per /hook request; handlers run concurrently.
	reqCount atomic.Int64
)

func main() {
	cfg = config.FromEnv()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	srv := &http.Server{
		Addr:         cfg.FakeReceiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.FakeReceiver.ReadTimeout,
		WriteTimeout: cfg.FakeReceiver.WriteTimeout,
		IdleTimeout:  cfg.FakeReceiver.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	n := reqCount.Add(1)
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if cfg.FakeReceiver.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(cfg.FakeReceiver.ResponseDelayMS) * time.Millisecond)
	}

	if secret := cfg.FakeReceiver.EndpointSecret; secret != "" {
		ts := r.Header.Get(cfg.Delivery.TimestampHeader)
		sig := r.Header.Get(cfg.Delivery.SignatureHeader)
		if ok, msg := verifyRequest(secret, b, ts, sig); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if n <= int64(cfg.FakeReceiver.FailFirstN) {
		log.Printf("FAILING (%d/%d) delivery=%s body=%s", n, cfg.FakeReceiver.FailFirstN,
			r.Header.Get(cfg.Delivery.DeliveryHeader), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK delivery=%s event=%s body=%q",
		r.Header.Get(cfg.Delivery.DeliveryHeader), r.Header.Get(cfg.Delivery.EventHeader), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

func verifyRequest(secret string, body []byte, ts, sig string) (bool, string) {
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false, "invalid timestamp"
	}
	leeway := int64(cfg.FakeReceiver.SigningLeewaySeconds)
	if abs64(time.Now().Unix()-unix) > leeway {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signature.Verify(body, sig, secret) {
		return false, "sig mismatch"
	}
	return true, ""
}

// abs64 returns the absolute value of an int64
func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
