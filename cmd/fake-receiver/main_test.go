package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/menucast/outhook/internal/config"
	"github.com/menucast/outhook/internal/signature"
)

func TestVerifyRequest(t *testing.T) {
	cfg = config.FromEnv()
	cfg.FakeReceiver.SigningLeewaySeconds = 300

	secret := "test-secret"
	body := []byte(`{"id":"evt-1","type":"menu.updated"}`)
	now := time.Now().Unix()

	validSig, err := signature.Sign(body, secret)
	if err != nil {
		t.Fatalf("signature.Sign() error: %v", err)
	}

	tests := []struct {
		name        string
		body        []byte
		timestamp   string
		signature   string
		expectValid bool
		expectedMsg string
	}{
		{
			name:        "valid signature",
			body:        body,
			timestamp:   strconv.FormatInt(now, 10),
			signature:   validSig,
			expectValid: true,
			expectedMsg: "",
		},
		{
			name:        "missing timestamp",
			body:        body,
			timestamp:   "",
			signature:   validSig,
			expectValid: false,
			expectedMsg: "missing headers",
		},
		{
			name:        "missing signature",
			body:        body,
			timestamp:   strconv.FormatInt(now, 10),
			signature:   "",
			expectValid: false,
			expectedMsg: "missing headers",
		},
		{
			name:        "invalid timestamp format",
			body:        body,
			timestamp:   "not-a-number",
			signature:   validSig,
			expectValid: false,
			expectedMsg: "invalid timestamp",
		},
		{
			name:        "timestamp too old",
			body:        body,
			timestamp:   strconv.FormatInt(now-310, 10),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "outside leeway",
		},
		{
			name:        "timestamp too new",
			body:        body,
			timestamp:   strconv.FormatInt(now+310, 10),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "outside leeway",
		},
		{
			name:        "signature mismatch",
			body:        []byte("tampered body"),
			timestamp:   strconv.FormatInt(now, 10),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
		{
			name:        "garbage signature",
			body:        body,
			timestamp:   strconv.FormatInt(now, 10),
			signature:   "sha256=not-hex",
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := verifyRequest(secret, tt.body, tt.timestamp, tt.signature)

			if valid != tt.expectValid {
				t.Errorf("verifyRequest() valid = %v, want %v (msg=%q)", valid, tt.expectValid, msg)
			}
			if tt.expectedMsg != "" && !strings.Contains(msg, tt.expectedMsg) {
				t.Errorf("verifyRequest() msg = %q, want containing %q", msg, tt.expectedMsg)
			}
			if tt.expectValid && msg != "" {
				t.Errorf("verifyRequest() msg = %q, want empty for valid request", msg)
			}
		})
	}
}

func TestHandleHook_FailFirstN(t *testing.T) {
	cfg = config.FromEnv()
	cfg.FakeReceiver.EndpointSecret = "" // skip verification
	cfg.FakeReceiver.FailFirstN = 2
	reqCount.Store(0)

	statuses := []int{}
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("POST", "/hook", bytes.NewReader([]byte(`{}`)))
		w := httptest.NewRecorder()
		handleHook(w, req)
		statuses = append(statuses, w.Code)
	}

	want := []int{
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusOK,
		http.StatusOK,
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, statuses[i], want[i])
		}
	}
}

func TestHandleHook_ConcurrentRequests(t *testing.T) {
	cfg = config.FromEnv()
	cfg.FakeReceiver.EndpointSecret = ""
	cfg.FakeReceiver.FailFirstN = 0
	reqCount.Store(0)

	const requests = 50
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("POST", "/hook", bytes.NewReader([]byte(`{}`)))
			handleHook(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	if got := reqCount.Load(); got != requests {
		t.Errorf("reqCount = %d, want %d", got, requests)
	}
}

func TestHandleHook_RejectsBadSignature(t *testing.T) {
	cfg = config.FromEnv()
	cfg.FakeReceiver.EndpointSecret = "receiver-secret"
	cfg.FakeReceiver.FailFirstN = 0
	cfg.FakeReceiver.SigningLeewaySeconds = 300
	reqCount.Store(0)

	body := []byte(`{"id":"evt-1"}`)

	// Unsigned request is rejected.
	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handleHook(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unsigned request status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// Correctly signed request is accepted.
	sig, err := signature.Sign(body, "receiver-secret")
	if err != nil {
		t.Fatalf("signature.Sign() error: %v", err)
	}
	req = httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set(cfg.Delivery.SignatureHeader, sig)
	req.Header.Set(cfg.Delivery.TimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	w = httptest.NewRecorder()
	handleHook(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("signed request status = %d, want %d (body=%q)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestAbs64(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  int64
	}{
		{"positive", 5, 5},
		{"negative", -5, 5},
		{"zero", 0, 0},
		{"large negative", -9223372036854775807, 9223372036854775807},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := abs64(tt.input); got != tt.want {
				t.Errorf("abs64(%d) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 5, "hello..."},
		{"empty string", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}
