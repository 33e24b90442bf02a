// Command outhookd is the delivery worker: it consumes delivery tasks from
// NSQ, performs the signed HTTP attempts, and runs the retry sweep over the
// ledger. Several instances can run side by side; the ledger's claim
// semantics keep them from fighting over due retries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menucast/outhook/internal/config"
	"github.com/menucast/outhook/internal/db"
	"github.com/menucast/outhook/internal/health"
	"github.com/menucast/outhook/internal/logging"
	"github.com/menucast/outhook/internal/metrics"
	"github.com/menucast/outhook/internal/postgres"
	"github.com/menucast/outhook/internal/queue"
	"github.com/menucast/outhook/internal/tracing"
	"github.com/menucast/outhook/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New("outhookd")

	shutdown, err := tracing.InitTracing(ctx, "outhookd")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler("outhookd", pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	transport, err := queue.NewTransport(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.DeliveriesTopic)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer transport.Stop()

	engine := webhook.NewEngine(
		postgres.NewRegistry(pool),
		postgres.NewLedger(pool),
		webhook.Options{
			MaxAttempts:   cfg.Delivery.MaxAttempts,
			Backoff:       cfg.Delivery.BackoffSchedule,
			JitterPct:     cfg.Delivery.JitterPercent,
			SweepInterval: cfg.Delivery.SweepInterval,
			SweepBatch:    cfg.Delivery.SweepBatch,
			Transport:     transport,
			Client:        &http.Client{Timeout: cfg.Delivery.Timeout},
			Headers: webhook.Headers{
				Signature: cfg.Delivery.SignatureHeader,
				Timestamp: cfg.Delivery.TimestampHeader,
				Delivery:  cfg.Delivery.DeliveryHeader,
				Event:     cfg.Delivery.EventHeader,
				UserAgent: cfg.Delivery.UserAgent,
			},
			Logger: logger,
		},
	)

	if cfg.Delivery.PublishDLQ {
		dlq, err := queue.NewDeadLetterPublisher(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.DeadLetterTopic)
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq dead-letter producer creation failed")
		}
		defer dlq.Stop()
		engine.Scheduler().OnExhausted = func(ctx context.Context, d *webhook.Delivery) {
			if err := dlq.Publish(d); err != nil {
				logger.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dead-letter publish failed")
			} else {
				logger.WithContext(ctx).WithDelivery(d.ID).WithField("topic", cfg.NSQ.DeadLetterTopic).Info("dead letter published")
			}
		}
	}

	consumer, err := queue.NewConsumer(cfg.NSQ.DeliveriesTopic, cfg.NSQ.WorkerChannel, 1000, engine.Attempt)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	if err := consumer.Connect(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("nsq connect failed")
	}

	go engine.Run(ctx)
	startBacklogMonitor(ctx, cfg)

	logger.Plain().Info("worker service started")
	<-ctx.Done()

	logger.Plain().Info("Shutting down worker service")
	consumer.Stop()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// startBacklogMonitor periodically scrapes nsqd stats to expose queue depth.
func startBacklogMonitor(ctx context.Context, cfg config.Config) {
	go func() {
		logger := logging.New("outhookd-monitor")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			// nsqd serves stats on its HTTP port, one above the TCP port
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("Failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				logger.Plain().WithError(err).Error("Failed to decode NSQ stats")
				continue
			}
			resp.Body.Close()

			for _, topic := range stats.Topics {
				if topic.Name != cfg.NSQ.DeliveriesTopic {
					continue
				}
				for _, channel := range topic.Channels {
					if channel.Name == cfg.NSQ.WorkerChannel {
						metrics.UpdateQueueBacklog(float64(channel.Depth))
					}
					metrics.UpdateQueueTopicDepth(topic.Name, channel.Name, float64(channel.Depth))
				}
			}
		}
	}()
}
