package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/menucast/outhook/internal/config"
	"github.com/menucast/outhook/internal/postgres"
	"github.com/menucast/outhook/internal/queue"
	"github.com/menucast/outhook/internal/webhook"
)

// retryCmd resets a delivery and queues one immediate attempt.
var retryCmd = &cobra.Command{
	Use:   "retry [delivery-id]",
	Short: "Manually retry a delivery",
	Long: `Reset a delivery to pending with its attempt counter cleared and
queue an immediate attempt, outside the automatic backoff schedule. A retry
already scheduled for the same delivery may still fire; receivers deduplicate
by delivery id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deliveryID := args[0]

		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connectPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		transport, err := queue.NewTransport(nsqdAddr, topic)
		if err != nil {
			return err
		}
		defer transport.Stop()

		cfg := config.FromEnv()
		engine := webhook.NewEngine(
			postgres.NewRegistry(pool),
			postgres.NewLedger(pool),
			webhook.Options{
				MaxAttempts: cfg.Delivery.MaxAttempts,
				Backoff:     cfg.Delivery.BackoffSchedule,
				Transport:   transport,
				Client:      &http.Client{Timeout: cfg.Delivery.TestTimeout},
			},
		)

		found, err := engine.Retry(ctx, deliveryID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("delivery %s not found", deliveryID)
		}
		if outputJSON {
			printOutput(map[string]any{"delivery_id": deliveryID, "retried": true})
		} else {
			fmt.Printf("Delivery %s queued for immediate retry\n", deliveryID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
