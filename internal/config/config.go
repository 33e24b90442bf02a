// Package config reads service configuration from environment variables with
// sane defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr     string // e.g. nsqd:4150
	LookupHTTPAddr  string // e.g. http://nsqlookupd:4161
	DeliveriesTopic string // topic carrying delivery tasks
	DeadLetterTopic string // topic carrying exhausted-delivery notices
	WorkerChannel   string // channel name for worker consumers
}

type Delivery struct {
	MaxAttempts     int             // automatic retry ceiling
	BackoffSchedule []time.Duration // delay table indexed by attempt (1-based)
	JitterPercent   float64         // backoff jitter percentage (0.0-1.0)
	Timeout         time.Duration   // hard per-attempt HTTP timeout
	TestTimeout     time.Duration   // timeout for synchronous test deliveries
	SweepInterval   time.Duration   // how often due retries are claimed
	SweepBatch      int             // max rows claimed per sweep
	PublishDLQ      bool            // publish exhausted deliveries to the dead-letter topic
	SignatureHeader string
	TimestampHeader string
	DeliveryHeader  string
	EventHeader     string
	UserAgent       string
}

type FakeReceiver struct {
	FailFirstN           int           // number of requests to fail initially
	EndpointSecret       string        // secret for signature verification
	SigningLeewaySeconds int           // allowed timestamp skew in seconds
	ResponseDelayMS      int           // simulated response delay in milliseconds
	Port                 string        // server listen port
	ReadTimeout          time.Duration // HTTP read timeout
	WriteTimeout         time.Duration // HTTP write timeout
	IdleTimeout          time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	DB           DB
	NSQ          NSQ
	Delivery     Delivery
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultBackoff() []time.Duration {
	return []time.Duration{1 * time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour, 12 * time.Hour}
}

// parseBackoffSchedule parses a comma-separated duration list. Bad entries
// are skipped; an empty result falls back to the default table.
func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return defaultBackoff()
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return defaultBackoff()
	}
	return durations
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "outhook"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "outhook"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:     getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:  getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			DeliveriesTopic: getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			DeadLetterTopic: getenv("NSQ_DEADLETTER_TOPIC", "deliveries_dead"),
			WorkerChannel:   getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Delivery: Delivery{
			MaxAttempts:     getenvInt("MAX_ATTEMPTS", 5),
			BackoffSchedule: parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("BACKOFF_JITTER_PCT", 0),
			Timeout:         getenvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			TestTimeout:     getenvDuration("TEST_DELIVERY_TIMEOUT", 10*time.Second),
			SweepInterval:   getenvDuration("SWEEP_INTERVAL", 30*time.Second),
			SweepBatch:      getenvInt("SWEEP_BATCH", 100),
			PublishDLQ:      getenvBool("PUBLISH_DLQ_TOPIC", false),
			SignatureHeader: getenv("WEBHOOK_SIGNATURE_HEADER", "X-Outhook-Signature"),
			TimestampHeader: getenv("WEBHOOK_TIMESTAMP_HEADER", "X-Outhook-Timestamp"),
			DeliveryHeader:  getenv("WEBHOOK_DELIVERY_HEADER", "X-Outhook-Delivery"),
			EventHeader:     getenv("WEBHOOK_EVENT_HEADER", "X-Outhook-Event"),
			UserAgent:       getenv("WEBHOOK_USER_AGENT", "Outhook/1.0"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:           getenvInt("FAIL_FIRST_N", 0),
			EndpointSecret:       getenv("ENDPOINT_SECRET", ""),
			SigningLeewaySeconds: getenvInt("SIGNING_LEEWAY_SECONDS", 300),
			ResponseDelayMS:      getenvInt("RESPONSE_DELAY_MS", 0),
			Port:                 getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:          getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:         getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:          getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
