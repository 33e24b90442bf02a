package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/menucast/outhook/internal/postgres"
)

var deliveriesLimit int

// deliveriesCmd lists the delivery rows fanned out for one event.
var deliveriesCmd = &cobra.Command{
	Use:   "deliveries [event-id]",
	Short: "Show delivery status for an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID := args[0]

		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connectPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ledger := postgres.NewLedger(pool)
		deliveries, err := ledger.ListByEvent(ctx, eventID, deliveriesLimit)
		if err != nil {
			return err
		}
		if len(deliveries) == 0 {
			fmt.Println("no deliveries found for this event")
			return nil
		}

		if outputJSON {
			printOutput(deliveries)
			return nil
		}
		for _, d := range deliveries {
			fmt.Printf("%s  endpoint=%s  status=%-8s  attempts=%d/%d",
				d.ID, d.EndpointID, d.Status, d.Attempts, d.MaxAttempts)
			if d.HTTPStatus != 0 {
				fmt.Printf("  http=%d", d.HTTPStatus)
			}
			if d.NextRetryAt != nil {
				fmt.Printf("  next_retry=%s", d.NextRetryAt.Format(time.RFC3339))
			}
			if d.CompletedAt != nil {
				fmt.Printf("  completed=%s", d.CompletedAt.Format(time.RFC3339))
			}
			if d.ErrorMessage != "" {
				fmt.Printf("  error=%q", truncateForDisplay(d.ErrorMessage))
			}
			fmt.Println()
		}
		return nil
	},
}

func truncateForDisplay(s string) string {
	const n = 80
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	deliveriesCmd.Flags().IntVar(&deliveriesLimit, "limit", 50, "maximum number of deliveries to list")
	rootCmd.AddCommand(deliveriesCmd)
}
